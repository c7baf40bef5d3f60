package flows

import (
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func jwtNumericDate(unix int64) *gjwt.NumericDate {
	return gjwt.NewNumericDate(time.Unix(unix, 0))
}
