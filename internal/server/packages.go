package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
)

func (s *Server) ListPackages(c *gin.Context) {
	req := catalogdomain.ListRequest{}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		req.Type = catalogdomain.PackageType(strings.ToUpper(raw))
		if !req.Type.Valid() {
			AbortWithError(c, catalogdomain.ErrInvalidPackageType)
			return
		}
	}

	packages, err := s.catalogSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": packages})
}

func (s *Server) GetPackage(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pkg, err := s.catalogSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("package_key", pkg.Key)

	c.JSON(http.StatusOK, gin.H{"data": pkg})
}
