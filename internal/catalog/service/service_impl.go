package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Package, error) {
	if id == 0 {
		return nil, domain.ErrPackageNotFound
	}
	pkg, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, domain.ErrPackageNotFound
	}
	return pkg, nil
}

func (s *Service) GetByKey(ctx context.Context, key string) (*domain.Package, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrPackageNotFound
	}
	pkg, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, domain.ErrPackageNotFound
	}
	return pkg, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Package, error) {
	req.Type = domain.PackageType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if req.Type != "" && !req.Type.Valid() {
		return nil, domain.ErrInvalidPackageType
	}
	return s.repo.List(ctx, s.db, req)
}
