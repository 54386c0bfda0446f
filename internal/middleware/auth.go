package middleware

import (
	"strings"

	"hosa-study-board/internal/auth"
	"hosa-study-board/internal/errors"

	"github.com/gin-gonic/gin"
)

// AuthMiddleWare accepts an anonymous session token from the Authorization
// header or, for websocket upgrades, the token query parameter.
func AuthMiddleWare() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		var token string
		tokenQuery := ctx.Query("token")

		if authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else if tokenQuery != "" {
			token = tokenQuery
		} else {
			ctx.Error(errors.Unauthorized("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		parsedToken, err := auth.VerifyJWT(token)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		uid, err := auth.GetDataFromToken(parsedToken)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		ctx.Set("uid", uid)
		ctx.Set("jwt_token", token)
		ctx.Next()
	}
}
