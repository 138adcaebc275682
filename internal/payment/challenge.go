package payment

import (
	"net/url"

	"github.com/0gfoundation/0g-arcade/internal/config"
)

// Challenge is the offer returned with a 402. Every field except ID and
// ExpiresAt comes from static config, never from the request.
type Challenge struct {
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	Network   string `json:"network"`
	Receiver  string `json:"receiver"`
	Memo      string `json:"memo"`
	ID        string `json:"challengeId,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// Proof is what the client presents when retrying the gated action.
// An empty Token means no proof yet.
type Proof struct {
	Token           string
	PresentedHealth int
	PlayerAddress   string
	ChallengeID     string
}

func (p Proof) Present() bool { return p.Token != "" }

// Issuer builds challenges from the payment config.
type Issuer struct {
	base      Challenge
	onrampURL string
}

func NewIssuer(cfg config.PaymentConfig) *Issuer {
	return &Issuer{
		base: Challenge{
			Price:    cfg.Price,
			Currency: cfg.Currency,
			Network:  cfg.Network,
			Receiver: cfg.Receiver,
			Memo:     cfg.Memo,
		},
		onrampURL: cfg.OnrampURL,
	}
}

// Issue returns a fresh copy of the configured challenge.
func (i *Issuer) Issue() Challenge { return i.base }

// OnrampLink builds a deep link where player can buy the challenge currency.
// Empty when no onramp is configured or the player is unknown.
func (i *Issuer) OnrampLink(player string) string {
	if i.onrampURL == "" || player == "" {
		return ""
	}
	u, err := url.Parse(i.onrampURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("address", player)
	q.Set("asset", i.base.Currency)
	q.Set("network", i.base.Network)
	u.RawQuery = q.Encode()
	return u.String()
}
