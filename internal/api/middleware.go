package api

import (
	"net/http"
	"strings"

	"github.com/annel0/worldmap/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	clientIDHeader  = "X-Client-ID"
	anonymousClient = "anonymous"

	ctxClaims   = "claims"
	ctxClientID = "client_id"
)

// bearerToken извлекает токен из заголовка "Authorization: Bearer <token>"
func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// identityMiddleware определяет клиента: X-Client-ID, иначе subject токена,
// иначе "anonymous". Недействительный токен здесь не ошибка.
func (rs *RestServer) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var subject string
		if token, found := bearerToken(c); found {
			if claims, err := auth.ValidateJWT(token); err == nil {
				c.Set(ctxClaims, claims)
				subject = claims.Subject
			}
		}

		clientID := strings.TrimSpace(c.GetHeader(clientIDHeader))
		switch {
		case clientID != "":
		case subject != "":
			clientID = subject
		default:
			clientID = anonymousClient
		}
		c.Set(ctxClientID, clientID)
		c.Next()
	}
}

// editorMiddleware пропускает только владельцев токена с правом editor
func (rs *RestServer) editorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, found := bearerToken(c); !found {
			fail(c, http.StatusUnauthorized, "Отсутствует токен авторизации")
			return
		}
		v, exists := c.Get(ctxClaims)
		if !exists {
			fail(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}
		if claims := v.(*auth.Claims); !claims.Editor {
			fail(c, http.StatusForbidden, "Недостаточно прав для правки карты")
			return
		}
		c.Next()
	}
}

func clientID(c *gin.Context) string {
	if id := c.GetString(ctxClientID); id != "" {
		return id
	}
	return anonymousClient
}

// editorID subject токена редактора; вызывается после editorMiddleware
func editorID(c *gin.Context) string {
	if v, exists := c.Get(ctxClaims); exists {
		return v.(*auth.Claims).Subject
	}
	return clientID(c)
}
