package service

import (
	"context"
	"time"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/models"
)

// RecurringStore is the slice of recurring credit persistence the sweeper needs
type RecurringStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*models.RecurringCredit, error)
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*models.RecurringCredit, error)
	AdvanceNext(ctx context.Context, id string, next time.Time) error
}

// AssignmentStore appends to the credit assignment ledger
type AssignmentStore interface {
	Create(ctx context.Context, assignment *models.CreditAssignment) error
}

// SweepItemResult records the outcome for one due config: the permission it
// received, or the error that prevented it.
type SweepItemResult struct {
	ConfigID     string `json:"config_id"`
	UserID       string `json:"user_id"`
	PermissionID string `json:"permission_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SweepReport summarizes one sweeper pass
type SweepReport struct {
	SweptAt   time.Time         `json:"swept_at"`
	Due       int               `json:"due"`
	Assigned  int               `json:"assigned"`
	Failed    int               `json:"failed"`
	FailedIDs []string          `json:"failed_ids,omitempty"`
	Results   []SweepItemResult `json:"results"`
}

// SweeperService assigns recurring credits that have come due. Each due
// config gets a fresh spend permission for its amount; the next assignment
// time is measured from the sweep, not the scheduled slot, so a late sweep
// pushes the following one out rather than double-assigning.
type SweeperService struct {
	recurring   RecurringStore
	permissions PermissionStore
	assignments AssignmentStore
	logger      *logging.Logger
	now         func() time.Time
}

// NewSweeperService creates a sweeper service
func NewSweeperService(recurring RecurringStore, permissions PermissionStore, assignments AssignmentStore) *SweeperService {
	return &SweeperService{
		recurring:   recurring,
		permissions: permissions,
		assignments: assignments,
		logger:      logging.WithField("service", "sweeper"),
		now:         time.Now,
	}
}

// SweepDue processes every due config. A failure on one config is recorded
// and skipped so the rest of the batch still gets its credits.
func (s *SweeperService) SweepDue(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	due, err := s.recurring.ListDue(ctx, now)
	if err != nil {
		return nil, errors.NewInternal("failed to list due recurring credits", err)
	}

	report := &SweepReport{SweptAt: now, Due: len(due), Results: make([]SweepItemResult, 0, len(due))}
	for _, credit := range due {
		item := SweepItemResult{ConfigID: credit.ID, UserID: credit.UserID}
		permissionID, err := s.assign(ctx, credit, now)
		if err != nil {
			item.Error = err.Error()
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, credit.ID)
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"recurring_id": credit.ID,
				"user_id":      credit.UserID,
			}).Error("recurring credit assignment failed")
		} else {
			item.PermissionID = permissionID
			report.Assigned++
		}
		report.Results = append(report.Results, item)
	}

	s.logger.WithFields(map[string]interface{}{
		"due":      report.Due,
		"assigned": report.Assigned,
		"failed":   report.Failed,
	}).Info("sweep completed")

	return report, nil
}

// Preview lists upcoming assignments without performing them
func (s *SweeperService) Preview(ctx context.Context, limit int) ([]*models.RecurringCredit, error) {
	if limit <= 0 {
		limit = 50
	}
	upcoming, err := s.recurring.ListUpcoming(ctx, s.now(), limit)
	if err != nil {
		return nil, errors.NewInternal("failed to list upcoming recurring credits", err)
	}
	return upcoming, nil
}

// assign mints one permission for a due config, records the ledger entry,
// and advances the schedule. The advance happens last so a partial failure
// leaves the config due and retried on the next sweep.
func (s *SweeperService) assign(ctx context.Context, credit *models.RecurringCredit, now time.Time) (string, error) {
	period := time.Duration(credit.PeriodSeconds) * time.Second
	expires := now.Add(period)

	permission := &models.SpendPermission{
		UserID:         credit.UserID,
		CapAmount:      credit.Amount,
		PeriodSeconds:  credit.PeriodSeconds,
		StartTimestamp: now,
		EndTimestamp:   expires,
	}
	usage := &models.CreditUsage{
		PeriodStart: now,
		PeriodEnd:   expires,
		TotalLimit:  credit.Amount,
	}
	if err := s.permissions.CreateWithUsage(ctx, permission, usage); err != nil {
		return "", err
	}

	assignment := &models.CreditAssignment{
		UserID:       credit.UserID,
		PermissionID: permission.ID,
		Amount:       credit.Amount,
		CreditType:   models.CreditRecurring,
		AssignedAt:   now,
		ExpiresAt:    expires,
		Status:       "assigned",
		Description:  credit.Description,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return "", err
	}

	return permission.ID, s.recurring.AdvanceNext(ctx, credit.ID, now.Add(period))
}
