package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"go.uber.org/zap"
)

// FacultySyncOptions управляет синхронизацией списка преподавателей
type FacultySyncOptions struct {
	// DryRun считает изменения без записи
	DryRun bool
	// DeactivateMissing выключает локальных преподавателей, которых нет у партнёра
	DeactivateMissing bool
}

// FacultySyncResult - итог синхронизации
type FacultySyncResult struct {
	Fetched     int `json:"fetched"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	Deactivated int `json:"deactivated"`
}

type FacultySyncService struct {
	store    repository.Store
	provider partner.ExternalProfileProvider
	clock    clock.Clock
	logger   *zap.Logger
}

func NewFacultySyncService(store repository.Store, provider partner.ExternalProfileProvider, clk clock.Clock, logger *zap.Logger) *FacultySyncService {
	return &FacultySyncService{
		store:    store,
		provider: provider,
		clock:    clk,
		logger:   logger,
	}
}

// Sync заводит и обновляет преподавателей по списку партнёра.
// Записи без email или id пропускаются, повторы email учитываются один раз.
func (s *FacultySyncService) Sync(ctx context.Context, opts FacultySyncOptions) (*FacultySyncResult, error) {
	records, err := s.provider.ListFaculty(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partner faculty: %w", err)
	}

	result := &FacultySyncResult{Fetched: len(records)}
	seen := make(map[string]struct{}, len(records))

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		now := s.clock.Now()
		for _, rec := range records {
			email := strings.TrimSpace(rec.Email)
			id := strings.TrimSpace(rec.ExternalID)
			key := strings.ToLower(email)
			if email == "" || id == "" {
				result.Skipped++
				continue
			}
			if _, ok := seen[key]; ok {
				result.Skipped++
				continue
			}
			seen[key] = struct{}{}

			name := strings.TrimSpace(rec.Name)
			if name == "" {
				name, _, _ = strings.Cut(email, "@")
			}

			existing, err := tx.Users().GetByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("get faculty: %w", err)
			}
			if existing == nil {
				result.Created++
			} else if existing.ExternalID != id || existing.Name != name || !existing.IsFaculty() {
				result.Updated++
			} else {
				continue
			}
			if opts.DryRun {
				continue
			}

			if _, _, err := upsertUser(ctx, tx, now, email, LocalUserInput{
				ExternalID: id,
				Email:      email,
				Name:       name,
				Role:       model.RoleFaculty,
			}); err != nil {
				return err
			}
		}

		if !opts.DeactivateMissing {
			return nil
		}

		local, err := tx.Users().ListFaculty(ctx)
		if err != nil {
			return fmt.Errorf("list local faculty: %w", err)
		}
		for _, f := range local {
			if _, ok := seen[strings.ToLower(f.Email)]; ok || !f.IsActive {
				continue
			}
			result.Deactivated++
			if opts.DryRun {
				continue
			}
			if err := tx.Users().SetActive(ctx, f.ID, false, now); err != nil {
				return fmt.Errorf("deactivate faculty: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Faculty roster synced",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("fetched", result.Fetched),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("deactivated", result.Deactivated),
	)

	return result, nil
}
