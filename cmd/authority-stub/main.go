// Development stand-in for the tenant authority. Serves the same
// /validate contract the gateway depends on, over a static tenant table,
// so the gateway can be run and exercised without the real service.
package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockroomhq/inventory-gateway/internal/models"
)

type stub struct {
	mu        sync.Mutex
	tenants   map[string]models.TenantIdentity // keyed by tenantId
	revoked   map[string]bool                  // jti
	lastUsed  map[string]time.Time             // jti
	jwtSecret []byte
	adminHash []byte
}

func main() {
	godotenv.Load()

	secret := os.Getenv("STUB_JWT_SECRET")
	if secret == "" {
		log.Fatal("STUB_JWT_SECRET is required")
	}

	adminHash := os.Getenv("STUB_ADMIN_PASSWORD_HASH")
	if adminHash == "" {
		log.Fatal("STUB_ADMIN_PASSWORD_HASH is required (bcrypt hash)")
	}

	tenantsPath := os.Getenv("STUB_TENANTS")
	if tenantsPath == "" {
		tenantsPath = "tenants.json"
	}

	tenants, err := loadTenants(tenantsPath)
	if err != nil {
		log.Fatalf("Failed to load tenants: %v", err)
	}

	s := &stub{
		tenants:   tenants,
		revoked:   make(map[string]bool),
		lastUsed:  make(map[string]time.Time),
		jwtSecret: []byte(secret),
		adminHash: []byte(adminHash),
	}

	router := gin.Default()
	router.POST("/validate", s.validate)
	router.POST("/tokens", s.requireAdmin, s.mintToken)
	router.DELETE("/tokens/:jti", s.requireAdmin, s.revokeToken)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "tenants": len(tenants)})
	})

	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "9090"
	}

	log.Printf("Authority stub listening on :%s with %d tenants", port, len(tenants))
	if err := router.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}

func loadTenants(path string) (map[string]models.TenantIdentity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []models.TenantIdentity
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}

	tenants := make(map[string]models.TenantIdentity, len(list))
	for _, t := range list {
		tenants[t.TenantID] = t
	}
	return tenants, nil
}

func (s *stub) requireAdmin(c *gin.Context) {
	user, password, ok := c.Request.BasicAuth()
	if !ok || user != "admin" ||
		bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) != nil {
		c.Header("WWW-Authenticate", `Basic realm="authority-stub"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Invalid admin credentials",
		})
		return
	}
	c.Next()
}

func (s *stub) mintToken(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenantId" binding:"required"`
		TTLHours int    `json:"ttlHours"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	s.mu.Lock()
	_, known := s.tenants[req.TenantID]
	s.mu.Unlock()

	if !known {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Unknown tenant"})
		return
	}

	if req.TTLHours <= 0 {
		req.TTLHours = 24 * 30
	}

	now := time.Now()
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.TenantID,
		"jti": jti,
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(req.TTLHours) * time.Hour).Unix(),
	})

	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to sign token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"token": signed,
			"jti":   jti,
		},
	})
}

func (s *stub) revokeToken(c *gin.Context) {
	jti := c.Param("jti")

	s.mu.Lock()
	s.revoked[jti] = true
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Token revoked"})
}

func failValidation(c *gin.Context, code, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
		"error":   gin.H{"code": code},
	})
}

func (s *stub) validate(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, "AUTH_TOKEN_INVALID", "Token is required")
		return
	}

	token, err := jwt.Parse(req.Token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			failValidation(c, "AUTH_TOKEN_EXPIRED", "Access token has expired")
			return
		}
		failValidation(c, "AUTH_TOKEN_INVALID", "Invalid access token")
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		failValidation(c, "AUTH_TOKEN_INVALID", "Invalid access token")
		return
	}

	tenantID, _ := claims["sub"].(string)
	jti, _ := claims["jti"].(string)

	s.mu.Lock()
	tenant, known := s.tenants[tenantID]
	isRevoked := s.revoked[jti]
	previousUse, usedBefore := s.lastUsed[jti]
	s.lastUsed[jti] = time.Now()
	s.mu.Unlock()

	if isRevoked {
		failValidation(c, "AUTH_TOKEN_REVOKED", "Access token has been revoked")
		return
	}

	if !known {
		failValidation(c, "AUTH_TOKEN_INVALID", "Unknown tenant")
		return
	}

	meta := models.TokenMeta{Active: true}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		meta.ExpiryDate = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		meta.CreatedAt = iat.Time
	}
	if usedBefore {
		meta.LastUsedAt = &previousUse
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"tenant":    tenant,
			"tokenMeta": meta,
		},
	})
}
