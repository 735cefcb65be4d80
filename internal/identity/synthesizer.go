package identity

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Header is set on outgoing proxied requests.
const Header = "x-rh-identity"

// Synthesizer derives an identity header from the credential on an incoming request.
// It is an enrichment step for local development, not an authentication gate.
type Synthesizer struct {
	// Defaults apply to every request; per call options take precedence.
	Defaults Options
}

func NewSynthesizer(defaults Options) *Synthesizer {
	return &Synthesizer{Defaults: defaults}
}

// Transform sets the identity header on out when in carries a decodable credential.
// Any failure leaves out untouched.
func (s *Synthesizer) Transform(out *http.Request, in *http.Request, opts Options) {
	token, ok := ExtractToken(in.Header)
	if !ok {
		return
	}

	claims, err := DecodeUnverified(token)
	if err != nil {
		log.Debug().Err(err).Msg("skipping identity header")
		return
	}

	header, err := Encode(Build(claims, s.Defaults, opts))
	if err != nil {
		log.Debug().Err(err).Msg("skipping identity header")
		return
	}
	out.Header.Set(Header, header)
}

// Encode renders the envelope as base64 encoded JSON.
func Encode(e Envelope) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode is the inverse of Encode.
func Decode(header string) (Envelope, error) {
	var e Envelope
	b, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(b, &e)
	return e, err
}
