package handler

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-ledger/internal/config"
	"github.com/iliyamo/ticket-ledger/internal/ledger"
	"github.com/iliyamo/ticket-ledger/internal/middleware"
	"github.com/iliyamo/ticket-ledger/internal/utils"
	"github.com/iliyamo/ticket-ledger/internal/wallet"
)

// LoginClaimer rejects a signed login that was already used.
type LoginClaimer interface {
	Claim(ctx context.Context, address, timestamp string) (bool, error)
}

// AuthHandler bundles dependencies for auth endpoints.  Guard is optional;
// without it a login body can be replayed until its timestamp leaves the
// skew window.
type AuthHandler struct {
	Cfg    config.Config
	Ledger *ledger.Ledger
	Guard  LoginClaimer
	Now    func() time.Time
}

func NewAuthHandler(cfg config.Config, l *ledger.Ledger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Ledger: l, Now: time.Now}
}

// ----- DTOs -----

// loginReq proves control of a wallet: Signature is over
// wallet.LoginMessage(Timestamp), made with the key behind PublicKey.
type loginReq struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"` // hex X||Y
	Signature string `json:"signature"`  // hex ASN.1
	Timestamp string `json:"timestamp"`  // Unix milliseconds
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	Address string    `json:"address"`
	Role    string    `json:"role"`
	Access  tokenPart `json:"access"`
}

// Login verifies a signed login message and issues an access token for
// the wallet address.  The timestamp must be within LoginSkew of server
// time, which bounds how long a captured signature can be replayed.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" || req.PublicKey == "" || req.Signature == "" || req.Timestamp == "" {
		return badRequest(c, "address/public_key/signature/timestamp required")
	}
	if err := wallet.ValidateAddress(req.Address); err != nil {
		return badRequest(c, "invalid address")
	}
	pub, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		return badRequest(c, "public_key must be hex")
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		return badRequest(c, "signature must be hex")
	}
	ms, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return badRequest(c, "timestamp must be unix milliseconds")
	}

	now := h.Now()
	if skew := now.Sub(time.UnixMilli(ms)).Abs(); skew > h.Cfg.LoginSkew {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "login timestamp outside allowed window"})
	}
	if wallet.AddressFromPublicKey(pub) != req.Address {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "public key does not match address"})
	}
	if err := wallet.VerifySignature(pub, wallet.LoginMessage(req.Timestamp), sig); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}

	if h.Guard != nil {
		// Redis errors let the login through, like the cache and rate limiter.
		if fresh, err := h.Guard.Claim(c.Request().Context(), req.Address, req.Timestamp); err == nil && !fresh {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "login already used"})
		}
	}

	role := utils.RoleFor(req.Address, h.Ledger.Admin())
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, req.Address, role, h.Cfg.AccessTTLMin, now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, authResp{
		Address: req.Address,
		Role:    role,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the caller's address, role, withdrawable balance and held
// tickets.
func (h *AuthHandler) Me(c echo.Context) error {
	p := middleware.Principal(c)
	role, _ := c.Get(middleware.ContextRole).(string)
	return c.JSON(http.StatusOK, echo.Map{
		"address": p,
		"role":    role,
		"balance": h.Ledger.Balance(p),
		"tickets": h.Ledger.TicketsOf(p),
	})
}
