package dao

import (
	"context"
	"errors"
	"fmt"

	"forge/internal/pipeline"
	"forge/internal/server/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type pipelineDAO struct {
	db *gorm.DB
}

// NewPipelineDao returns a pipeline.Store on a SQL database. Update holds a
// row lock for the read-modify-write.
func NewPipelineDao(db *gorm.DB) pipeline.Store {
	return &pipelineDAO{db: db}
}

func (d *pipelineDAO) Create(ctx context.Context, p *pipeline.Pipeline) error {
	rec, err := toRecord(p)
	if err != nil {
		return storageErr(err)
	}
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		return storageErr(err)
	}
	return nil
}

func (d *pipelineDAO) Get(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	var rec model.Pipeline
	err := d.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pipeline.ErrNotFound
		}
		return nil, storageErr(err)
	}
	p, err := fromRecord(&rec)
	if err != nil {
		return nil, storageErr(err)
	}
	return p, nil
}

func (d *pipelineDAO) Update(ctx context.Context, id string, mutate func(p *pipeline.Pipeline) error) (*pipeline.Pipeline, error) {
	var (
		out       *pipeline.Pipeline
		mutateErr error
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec model.Pipeline
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&rec).Error; err != nil {
			return err
		}
		p, err := fromRecord(&rec)
		if err != nil {
			return err
		}
		if err := mutate(p); err != nil {
			mutateErr = err
			return err
		}
		next, err := toRecord(p)
		if err != nil {
			return err
		}
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		out = p
		return nil
	})
	switch {
	case mutateErr != nil:
		return nil, mutateErr
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pipeline.ErrNotFound
	case err != nil:
		return nil, storageErr(err)
	}
	return out, nil
}

func (d *pipelineDAO) List(ctx context.Context, filter pipeline.ListFilter) ([]*pipeline.Pipeline, error) {
	q := d.db.WithContext(ctx).Model(&model.Pipeline{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if !filter.UpdatedBefore.IsZero() {
		q = q.Where("updated_at < ?", filter.UpdatedBefore)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var recs []*model.Pipeline
	if err := q.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, storageErr(err)
	}
	out := make([]*pipeline.Pipeline, 0, len(recs))
	for _, rec := range recs {
		p, err := fromRecord(rec)
		if err != nil {
			return nil, storageErr(err)
		}
		out = append(out, p)
	}
	return out, nil
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", pipeline.ErrStorage, err)
}
