package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmeshcher/yenabook/internal/model"
)

// CreateService добавляет услугу в каталог принципала как исполнителя.
func (s *Service) CreateService(ctx context.Context, p model.Principal, name string, price int64, durationMinutes int) (*model.Service, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: service name is required", ErrValidation)
	case price < 0:
		return nil, fmt.Errorf("%w: price must not be negative", ErrValidation)
	case durationMinutes <= 0:
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	svc := &model.Service{
		ProviderID:      p.UserID,
		Name:            name,
		Price:           price,
		DurationMinutes: durationMinutes,
	}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return nil, err
	}

	s.catalog.Delete(catalogKey(p.UserID))
	return svc, nil
}

// ProviderServices возвращает каталог услуг исполнителя. Результат кешируется.
func (s *Service) ProviderServices(ctx context.Context, providerID int64) ([]model.Service, error) {
	key := catalogKey(providerID)
	if cached, ok := s.catalog.Get(key); ok {
		return cached.([]model.Service), nil
	}

	services, err := s.repo.ListServicesByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	s.catalog.SetDefault(key, services)
	return services, nil
}

func catalogKey(providerID int64) string {
	return "services:" + strconv.FormatInt(providerID, 10)
}
