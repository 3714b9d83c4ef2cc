package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quizlive/stagetime/go/internal/models"
)

// Auth signs and verifies room join tokens. An empty secret disables token
// checks entirely, which is the local development mode; the host key gate is
// independent so a dev setup can still fence off host actions.
type Auth struct {
	secret  []byte
	hostKey string
	ttl     time.Duration
}

// JoinClaims is what a verified join token says about its holder.
type JoinClaims struct {
	RoomCode    string
	Participant models.Participant
}

// HostKeyHeader carries the shared host key on join requests.
const HostKeyHeader = "X-Host-Key"

const defaultTokenTTL = 12 * time.Hour

var (
	errNoToken      = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// NewAuth creates the token layer. ttl zero falls back to 12h, roughly one
// show evening with margin.
func NewAuth(secret, hostKey string, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Auth{
		secret:  []byte(secret),
		hostKey: hostKey,
		ttl:     ttl,
	}
}

// Enabled reports whether join tokens are required.
func (a *Auth) Enabled() bool {
	return len(a.secret) > 0
}

// SignJoinToken issues a token binding the participant to one room.
func (a *Auth) SignJoinToken(roomCode string, p models.Participant) (string, time.Time, error) {
	exp := time.Now().Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"room": roomCode,
		"pid":  p.ID,
		"name": p.Name,
		"role": string(p.Role),
		"exp":  exp.Unix(),
		"iat":  time.Now().Unix(),
	})
	ss, err := token.SignedString(a.secret)
	return ss, exp, err
}

// ParseJoinToken verifies a token and returns its claims.
func (a *Auth) ParseJoinToken(tokenStr string) (*JoinClaims, error) {
	if tokenStr == "" {
		return nil, errNoToken
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	room, _ := claims["room"].(string)
	pid, _ := claims["pid"].(string)
	name, _ := claims["name"].(string)
	roleStr, _ := claims["role"].(string)
	role := models.Role(roleStr)
	if room == "" || pid == "" || !role.Valid() {
		return nil, errInvalidToken
	}

	return &JoinClaims{
		RoomCode: room,
		Participant: models.Participant{
			ID:   pid,
			Name: name,
			Role: role,
		},
	}, nil
}

// AuthorizeHost reports whether the request may claim the host role. With no
// host key configured anyone may.
func (a *Auth) AuthorizeHost(r *http.Request) bool {
	if a.hostKey == "" {
		return true
	}
	return r.Header.Get(HostKeyHeader) == a.hostKey
}

// tokenFromRequest pulls the join token from the Authorization header or,
// for websocket dials where browsers cannot set headers, the token query
// parameter.
func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return r.URL.Query().Get("token")
}
