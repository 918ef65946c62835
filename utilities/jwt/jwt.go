package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"gopkg.in/square/go-jose.v2"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/utilities"
)

var (
	ErrNoSigningKey = errors.New("no private key configured")
	ErrNoVerifyKey  = errors.New("no public key configured")
)

type jwtClaims struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	jwt.StandardClaims
}

// Claims is what a verified token yields to callers.
type Claims struct {
	UserID    string
	Kind      string
	ExpiresAt time.Time
}

var (
	keyMu  sync.RWMutex
	pvtKey *jose.JSONWebKey
	pubKey *jose.JSONWebKey
	issuer = consts.AppName
)

// LoadKeyPair reads JWK encoded keys from disk. The private key is optional,
// a gateway that only verifies tokens needs the public key alone.
func LoadKeyPair(pvtPath, pubPath, iss string) error {
	var pvt, pub *jose.JSONWebKey

	if pvtPath != "" {
		key, err := readJWK(pvtPath)
		if err != nil {
			return fmt.Errorf("failed to load private key: %w", err)
		}
		pvt = key
	}

	if pubPath == "" {
		return ErrNoVerifyKey
	}
	pub, err := readJWK(pubPath)
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}

	SetKeyPair(pvt, pub, iss)
	return nil
}

func SetKeyPair(pvt, pub *jose.JSONWebKey, iss string) {
	keyMu.Lock()
	defer keyMu.Unlock()

	pvtKey = pvt
	pubKey = pub
	if iss != "" {
		issuer = iss
	}
}

func readJWK(path string) (*jose.JSONWebKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return &key, nil
}

func getRSAKeyPair() (*jose.JSONWebKey, *jose.JSONWebKey, string) {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return pvtKey, pubKey, issuer
}

func signPayload(key *jose.JSONWebKey, payload []byte) (jws string, err error) {
	signingKey := jose.SigningKey{Key: key, Algorithm: jose.RS256}

	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{})
	if err != nil {
		return "", err
	}

	signature, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}

	return signature.CompactSerialize()
}

// GenerateJWT issues a token for userID valid for ttl.
func GenerateJWT(userID, kind string, ttl time.Duration) (string, int, error) {
	log := utilities.NewLogger("GenerateJWT")

	signingKey, _, iss := getRSAKeyPair()
	if signingKey == nil {
		return "", 0, ErrNoSigningKey
	}

	now := time.Now()
	expiryTime := now.Add(ttl)
	claims := jwtClaims{
		UserID: userID,
		Kind:   kind,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			ExpiresAt: expiryTime.Unix(),
			Issuer:    iss,
			IssuedAt:  now.Unix(),
		},
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", 0, err
	}

	jwtToken, err := signPayload(signingKey, payload)
	if err != nil {
		return "", 0, err
	}

	log.Debugf("Token generated for %s with expiry %s", userID, expiryTime)

	return jwtToken, int(ttl.Seconds()), nil
}

// VerifyJWT verifies jwt token and returns claims
func VerifyJWT(jwtToken string) (*Claims, error) {
	log := utilities.NewLogger("VerifyJWT")

	jws, err := jose.ParseSigned(jwtToken)
	if err != nil {
		log.WithError(err).Debug("token parsing failed")
		return nil, err
	}

	_, verifyKey, iss := getRSAKeyPair()
	if verifyKey == nil {
		return nil, ErrNoVerifyKey
	}

	payload, err := jws.Verify(verifyKey)
	if err != nil {
		log.WithError(err).Debug("jws verify failed")
		return nil, err
	}

	claims := &jwtClaims{}
	err = json.Unmarshal(payload, claims)
	if err != nil {
		log.WithError(err).Error("unmarshal failed")
		return nil, err
	}

	err = claims.StandardClaims.Valid()
	if err != nil {
		log.WithError(err).Debug("standard claims invalid")
		return nil, err
	}

	if claims.StandardClaims.Issuer != iss {
		return nil, fmt.Errorf("invalid issuer %s", claims.StandardClaims.Issuer)
	}

	if claims.UserID == "" || claims.UserID != claims.StandardClaims.Subject {
		return nil, fmt.Errorf("invalid subject %s", claims.StandardClaims.Subject)
	}

	return &Claims{
		UserID:    claims.UserID,
		Kind:      claims.Kind,
		ExpiresAt: time.Unix(claims.StandardClaims.ExpiresAt, 0),
	}, nil
}
