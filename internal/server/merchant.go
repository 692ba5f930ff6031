package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	merchantdomain "github.com/perkforge/couponvault/internal/merchant/domain"
)

type authorizeMerchantRequest struct {
	Principal string `json:"principal"`
}

func (s *Server) AuthorizeMerchant(c *gin.Context) {
	merchantID, err := parseMerchantID(c.Param("merchant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req authorizeMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.merchantSvc.Authorize(c.Request.Context(), merchantdomain.AuthorizeMerchantRequest{
		MerchantID: merchantID,
		Principal:  strings.TrimSpace(req.Principal),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMerchant(c *gin.Context) {
	merchantID, err := parseMerchantID(c.Param("merchant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.merchantSvc.Resolve(c.Request.Context(), merchantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CheckPrincipal(c *gin.Context) {
	principal := strings.TrimSpace(c.Param("principal"))

	authorized, err := s.merchantSvc.IsAuthorized(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"principal":  principal,
		"authorized": authorized,
	}})
}

func parseMerchantID(raw string) (int64, error) {
	merchantID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || merchantID <= 0 {
		return 0, newValidationError("merchant_id", "invalid_merchant_id", "invalid merchant id")
	}
	return merchantID, nil
}
