package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// GatewaySignatureHeader содержит hex-подпись HMAC-SHA256 тела запроса платёжного шлюза.
const GatewaySignatureHeader = "X-Gateway-Signature"

const maxGatewayBody = 1 << 20

// GatewayAuth пропускает только запросы, тело которых подписано общим секретом шлюза.
type GatewayAuth struct {
	secretKey []byte
}

// NewGatewayAuth создаёт проверку подписи шлюза.
// При пустом секрете отклоняются все запросы.
func NewGatewayAuth(secret string) *GatewayAuth {
	return &GatewayAuth{secretKey: []byte(secret)}
}

// Sign возвращает подпись тела запроса.
func (g *GatewayAuth) Sign(body []byte) string {
	mac := hmac.New(sha256.New, g.secretKey)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Middleware сверяет подпись из заголовка с телом запроса и возвращает тело обработчику.
func (g *GatewayAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(g.secretKey) == 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxGatewayBody))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		signature := r.Header.Get(GatewaySignatureHeader)
		if signature == "" || !hmac.Equal([]byte(signature), []byte(g.Sign(body))) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
