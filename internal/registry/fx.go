package registry

import (
	"github.com/smallbiznis/tollgate/internal/registry/domain"
	"github.com/smallbiznis/tollgate/internal/registry/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("registry",
	fx.Provide(NewRepository),
	fx.Invoke(migrate),
)

func NewRepository(db *gorm.DB) domain.Repository {
	return repository.New(db)
}

func migrate(repo domain.Repository) error {
	if r, ok := repo.(*repository.Repository); ok {
		return r.Migrate()
	}
	return nil
}
