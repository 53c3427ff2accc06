package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Package, error)
	GetByKey(ctx context.Context, key string) (*Package, error)
	List(ctx context.Context, req ListRequest) ([]Package, error)
}

type ListRequest struct {
	Type            PackageType
	IncludeInactive bool
}

var (
	ErrPackageNotFound        = errors.New("package_not_found")
	ErrInvalidPackageType     = errors.New("invalid_package_type")
	ErrInvalidEffect          = errors.New("invalid_package_effect")
	ErrUnsupportedPackageType = errors.New("unsupported_package_type")
)
