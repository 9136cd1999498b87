package session

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/auth"
	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/identity"
	"github.com/campus-market/campus_market/internal/logging"
	"github.com/campus-market/campus_market/internal/money"
)

// UserIDLocal is the fiber Locals key holding the authenticated user id.
const UserIDLocal = "user_id"

// Handler exposes the facade over HTTP. Each request gets its own Session
// rebuilt from the bearer token.
type Handler struct {
	svc    *Service
	tokens *auth.Service
	logger *slog.Logger
}

// NewHandler builds a session HTTP handler.
func NewHandler(svc *Service, tokens *auth.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// fail maps err onto an HTTP error. Unclassified errors are logged and
// replaced with a generic message so storage details never reach the caller.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.Any("error", err),
		)
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	return fiber.NewError(status, err.Error())
}

func current(c *fiber.Ctx) *Session {
	uid, _ := c.Locals(UserIDLocal).(string)
	return &Session{UserID: uid}
}

type userResponse struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	Phone            string       `json:"phone"`
	Verified         bool         `json:"verified"`
	BiometricEnabled bool         `json:"biometricEnabled"`
	BalancePending   money.Amount `json:"balancePending"`
	BalanceAvailable money.Amount `json:"balanceAvailable"`
	CreatedAt        time.Time    `json:"createdAt"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Phone:            u.Phone,
		Verified:         u.Verified,
		BiometricEnabled: u.BiometricEnabled,
		BalancePending:   u.Balances.Pending,
		BalanceAvailable: u.Balances.Available,
		CreatedAt:        u.CreatedAt,
	}
}

type listingResponse struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Price        money.Amount `json:"price"`
	Unit         string       `json:"unit"`
	Category     string       `json:"category"`
	Description  string       `json:"description"`
	Location     string       `json:"location"`
	ProviderID   string       `json:"providerId"`
	Visible      bool         `json:"visible"`
	ContactEmail string       `json:"contactEmail"`
	CreatedAt    time.Time    `json:"createdAt"`
}

func toListingResponse(l catalog.Listing) listingResponse {
	return listingResponse{
		ID:           l.ID,
		Title:        l.Title,
		Price:        l.Price,
		Unit:         string(l.Unit),
		Category:     l.Category,
		Description:  l.Description,
		Location:     l.Location,
		ProviderID:   l.ProviderID,
		Visible:      l.Visible,
		ContactEmail: l.ContactEmail,
		CreatedAt:    l.CreatedAt,
	}
}

func toListingResponses(listings []catalog.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingResponse(l))
	}
	return out
}

type signedInResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int64        `json:"expiresIn"`
}

func (h *Handler) signedIn(c *fiber.Ctx, user identity.User) error {
	token, err := h.tokens.Issue(user)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(signedInResponse{User: toUserResponse(user), AccessToken: token.AccessToken, ExpiresIn: token.ExpiresIn})
}

type registerRequest struct {
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Secret string `json:"secret"`
}

// Register creates an account and sends the verification notice.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.svc.RegisterAndSendVerification(c.UserContext(), identity.Registration{Email: req.Email, Phone: req.Phone, Secret: req.Secret})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toUserResponse(user))
}

type verifyRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

// Verify checks the code and signs the user in.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.svc.VerifyAccount(c.UserContext(), &Session{}, req.UserID, req.Code)
	if err != nil {
		return h.fail(c, err)
	}
	return h.signedIn(c, user)
}

type loginRequest struct {
	Email           string `json:"email"`
	Secret          string `json:"secret"`
	EnableBiometric bool   `json:"enableBiometric"`
}

// Login authenticates and issues an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.svc.Login(c.UserContext(), &Session{}, req.Email, req.Secret, req.EnableBiometric)
	if err != nil {
		return h.fail(c, err)
	}
	return h.signedIn(c, user)
}

// Logout revokes every token issued to the user.
func (h *Handler) Logout(c *fiber.Ctx) error {
	sess := current(c)
	userID := sess.UserID
	if err := h.svc.Logout(c.UserContext(), sess); err != nil {
		return h.fail(c, err)
	}
	if err := h.tokens.Revoke(c.UserContext(), userID); err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// Me returns the profile and provider dashboard.
func (h *Handler) Me(c *fiber.Ctx) error {
	dash, err := h.svc.Dashboard(c.UserContext(), current(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user":           toUserResponse(dash.User),
		"activeListings": dash.ActiveListings,
		"pending":        dash.Pending,
		"available":      dash.Available,
	})
}

type biometricRequest struct {
	Enabled bool `json:"enabled"`
}

// SetBiometric toggles biometric login.
func (h *Handler) SetBiometric(c *fiber.Ctx) error {
	var req biometricRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.svc.SetBiometric(c.UserContext(), current(c), req.Enabled)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(toUserResponse(user))
}

// MyListings lists the caller's listings, archived ones included.
func (h *Handler) MyListings(c *fiber.Ctx) error {
	listings, err := h.svc.MyListings(c.UserContext(), current(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(toListingResponses(listings))
}

// MyTransactions lists purchases and sales, newest first.
func (h *Handler) MyTransactions(c *fiber.Ctx) error {
	txs, err := h.svc.MyTransactions(c.UserContext(), current(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(txs)
}

// Payout withdraws the caller's available balance.
func (h *Handler) Payout(c *fiber.Ctx) error {
	payout, err := h.svc.RequestPayout(c.UserContext(), current(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(payout)
}

// ListListings serves search (?q=), recent (?limit=) or the full feed.
func (h *Handler) ListListings(c *fiber.Ctx) error {
	var (
		listings []catalog.Listing
		err      error
	)
	switch {
	case c.Query("q") != "":
		listings, err = h.svc.Search(c.UserContext(), c.Query("q"))
	case c.Query("limit") != "":
		n, convErr := strconv.Atoi(c.Query("limit"))
		if convErr != nil {
			return fiber.NewError(http.StatusBadRequest, "limit must be an integer")
		}
		listings, err = h.svc.Recent(c.UserContext(), n)
	default:
		listings, err = h.svc.Feed(c.UserContext())
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(toListingResponses(listings))
}

// GetListing returns one listing.
func (h *Handler) GetListing(c *fiber.Ctx) error {
	listing, err := h.svc.GetListing(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(toListingResponse(listing))
}

// Quote previews the fee split of a purchase.
func (h *Handler) Quote(c *fiber.Ctx) error {
	quote, err := h.svc.QuotePurchase(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(quote)
}

type publishRequest struct {
	Title        string `json:"title"`
	Price        string `json:"price"`
	Unit         string `json:"unit"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	ContactEmail string `json:"contactEmail"`
}

// Publish creates a listing owned by the caller.
func (h *Handler) Publish(c *fiber.Ctx) error {
	var req publishRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	listing, err := h.svc.PublishListing(c.UserContext(), current(c), catalog.PublishInput{
		Title:        req.Title,
		Price:        req.Price,
		Unit:         req.Unit,
		Category:     req.Category,
		Description:  req.Description,
		Location:     req.Location,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toListingResponse(listing))
}

// Archive hides one of the caller's listings.
func (h *Handler) Archive(c *fiber.Ctx) error {
	if err := h.svc.ArchiveListing(c.UserContext(), current(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "archived"})
}

// Purchase settles a listing with the caller as buyer.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	tx, err := h.svc.CompletePurchase(c.UserContext(), current(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(tx)
}

// Threads lists the caller's conversations.
func (h *Handler) Threads(c *fiber.Ctx) error {
	threads, err := h.svc.Threads(c.UserContext(), current(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(threads)
}

// Thread opens the conversation with :userId.
func (h *Handler) Thread(c *fiber.Ctx) error {
	thread, err := h.svc.Thread(c.UserContext(), current(c), c.Params("userId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(thread)
}

type messageRequest struct {
	Text string `json:"text"`
}

// SendMessage appends to the conversation with :userId.
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	msg, err := h.svc.SendMessage(c.UserContext(), current(c), c.Params("userId"), req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(msg)
}
