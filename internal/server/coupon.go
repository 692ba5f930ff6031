package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	coupondomain "github.com/perkforge/couponvault/internal/coupon/domain"
	"github.com/perkforge/couponvault/pkg/db/pagination"
)

type mintCouponRequest struct {
	Recipient     string `json:"recipient"`
	MerchantID    int64  `json:"merchant_id"`
	CouponType    string `json:"coupon_type"`
	DiscountValue int64  `json:"discount_value"`
	MaxQuantity   int    `json:"max_quantity"`
	ExpiresAt     string `json:"expires_at"`
	RarityLevel   string `json:"rarity_level"`
	Description   string `json:"description"`
	MetadataRef   string `json:"metadata_ref"`
}

func (s *Server) MintCoupon(c *gin.Context) {
	var req mintCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ExpiresAt))
	if err != nil {
		AbortWithError(c, newValidationError("expires_at", "invalid_expires_at", "invalid expires_at"))
		return
	}

	couponType, err := coupondomain.ParseCouponType(req.CouponType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rarity, err := coupondomain.ParseRarityLevel(req.RarityLevel)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.couponSvc.Mint(c.Request.Context(), coupondomain.MintCouponRequest{
		Recipient:     strings.TrimSpace(req.Recipient),
		MerchantID:    req.MerchantID,
		CouponType:    couponType,
		DiscountValue: req.DiscountValue,
		MaxQuantity:   req.MaxQuantity,
		ExpiresAt:     expiresAt,
		RarityLevel:   rarity,
		Description:   strings.TrimSpace(req.Description),
		MetadataRef:   strings.TrimSpace(req.MetadataRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCoupon(c *gin.Context) {
	tokenID, err := parseTokenID(c.Param("token_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.couponSvc.GetCoupon(c.Request.Context(), tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RedeemCoupon(c *gin.Context) {
	tokenID, err := parseTokenID(c.Param("token_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.couponSvc.Redeem(c.Request.Context(), tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CheckCouponValid(c *gin.Context) {
	tokenID, err := parseTokenID(c.Param("token_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	valid, err := s.couponSvc.IsValid(c.Request.Context(), tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"token_id": tokenID,
		"valid":    valid,
	}})
}

func (s *Server) ListCoupons(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Owner      string `form:"owner"`
		MerchantID int64  `form:"merchant_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.couponSvc.List(c.Request.Context(), coupondomain.ListCouponsRequest{
		Owner:      strings.TrimSpace(query.Owner),
		MerchantID: query.MerchantID,
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSupply(c *gin.Context) {
	total, err := s.couponSvc.TotalIssued(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"total_issued": total,
	}})
}

func parseTokenID(raw string) (int64, error) {
	tokenID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || tokenID <= 0 {
		return 0, newValidationError("token_id", "invalid_token_id", "invalid token id")
	}
	return tokenID, nil
}
