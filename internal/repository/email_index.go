package repository

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/models"
	"github.com/oneboxhq/onebox/internal/tracing"
)

type emailIndexRepository struct {
	db              *gorm.DB
	defaultPageSize int
}

func NewEmailIndexRepository(db *gorm.DB, defaultPageSize int) interfaces.EmailIndex {
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	return &emailIndexRepository{
		db:              db,
		defaultPageSize: defaultPageSize,
	}
}

// Upsert writes one document keyed by (account, uid); re-indexing the
// same message overwrites all mutable columns.
func (r *emailIndexRepository) Upsert(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailIndexRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email == nil {
		return nil
	}
	if email.ID == "" {
		email.ID = models.DocumentID(email.Account, email.UID)
	}
	tracing.TagEntity(span, email.ID)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "uid"}},
			UpdateAll: true,
		}).
		Create(email).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailIndexRepository) BulkUpsert(ctx context.Context, emails []*models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailIndexRepository.BulkUpsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("count", len(emails))

	if len(emails) == 0 {
		return nil
	}
	for _, email := range emails {
		if email.ID == "" {
			email.ID = models.DocumentID(email.Account, email.UID)
		}
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "uid"}},
			UpdateAll: true,
		}).
		CreateInBatches(emails, 100).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailIndexRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailIndexRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var email models.Email
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailIndexRepository) Update(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailIndexRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	if len(fields) == 0 {
		return r.exists(ctx, id)
	}

	result := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *emailIndexRepository) Delete(ctx context.Context, id string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailIndexRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Email{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Search applies every filter condition as a conjunction and pages over
// the matches newest first.
func (r *emailIndexRepository) Search(ctx context.Context, filter interfaces.EmailFilter, page, size int) (*interfaces.EmailPage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailIndexRepository.Search")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, filter.Account)

	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = r.defaultPageSize
	}

	query := r.db.WithContext(ctx).Model(&models.Email{})

	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		query = query.Where(
			"subject ILIKE ? OR content ILIKE ? OR sender ILIKE ?",
			pattern, pattern, pattern,
		)
	}
	if len(filter.Categories) > 0 {
		query = query.Where("categories && ?", pq.StringArray(filter.Categories))
	}
	if filter.Interested != nil {
		query = query.Where("is_interested = ?", *filter.Interested)
	}
	if filter.Account != "" {
		query = query.Where("account = ?", filter.Account)
	}
	if filter.From != nil {
		query = query.Where("timestamp >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("timestamp <= ?", filter.To.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var emails []*models.Email
	err := query.
		Order("timestamp DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&emails).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogKV("total", total, "returned", len(emails))

	return &interfaces.EmailPage{
		Emails: emails,
		Total:  total,
		Page:   page,
		Size:   size,
		Pages:  pageCount(total, size),
	}, nil
}

func (r *emailIndexRepository) exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func pageCount(total int64, size int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
