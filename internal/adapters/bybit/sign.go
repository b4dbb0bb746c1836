package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
)

// sign añade las cabeceras de autenticación v5. La firma es
// HMAC-SHA256(secret, timestamp + apiKey + recvWindow + payload), donde
// payload es la query string en GET o el body JSON en POST.
func (c *Client) sign(req *http.Request, payload string) {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(ts + c.key + recvWindow + payload))
	sig := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-BAPI-API-KEY", c.key)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", sig)
}
