package front

import (
	"net/http"
	"strings"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/generation"
	"github.com/creditstudio/CreditStudio/internal/http/api/front/handlers"
	"github.com/creditstudio/CreditStudio/internal/ledger"
	"github.com/creditstudio/CreditStudio/internal/security"
	"github.com/creditstudio/CreditStudio/internal/workflow"
	"github.com/gin-gonic/gin"
)

// Deps are the services the user-facing routes call into.
type Deps struct {
	JWT         config.JWTConfig
	Quoter      handlers.Quoter
	Ledger      *ledger.Ledger
	Engine      *workflow.Engine
	Generations *generation.Service
}

// RegisterFrontRoutes registers the authenticated /v1 routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil {
		return
	}

	v1 := r.Group("/v1")
	v1.Use(userAuthMiddleware(deps.JWT))

	pricingHandler := handlers.NewPricingHandler(deps.Quoter)
	v1.POST("/pricing/quote", pricingHandler.Quote)

	balanceHandler := handlers.NewBalanceHandler(deps.Ledger)
	v1.GET("/balance", balanceHandler.Get)
	v1.GET("/balance/transactions", balanceHandler.Transactions)

	chatHandler := handlers.NewChatHandler(deps.Engine)
	v1.POST("/chats", chatHandler.Create)
	v1.GET("/chats/:id", chatHandler.Get)
	v1.POST("/chats/:id/steps", chatHandler.ExecuteStep)
	v1.POST("/chats/:id/advance", chatHandler.Advance)
	v1.GET("/chats/:id/progress", chatHandler.Progress)
	v1.POST("/chats/:id/archive", chatHandler.Archive)

	generationHandler := handlers.NewGenerationHandler(deps.Generations)
	v1.POST("/generations", generationHandler.Create)
	v1.GET("/generations/:id", generationHandler.Get)
}

// userAuthMiddleware validates user JWTs and stores the user id in context.
func userAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errJWT.Error()})
			return
		}

		c.Set("userID", claims.UserID)
		c.Next()
	}
}
