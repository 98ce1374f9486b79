// Package seed builds fake providers, patients and weekly templates for local
// environments and load tests.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var shifts = [][]slot.Range{
	{{Start: slot.NewClock(9, 0), End: slot.NewClock(12, 0)}, {Start: slot.NewClock(13, 0), End: slot.NewClock(17, 0)}},
	{{Start: slot.NewClock(8, 0), End: slot.NewClock(13, 0)}},
	{{Start: slot.NewClock(14, 0), End: slot.NewClock(20, 0)}},
}

type Dataset struct {
	Providers []appointment.Provider
	Patients  []appointment.Patient
	Templates []*template.WeeklyTemplate
}

// Generate draws names, fees and shifts from f. Ids are always random.
func Generate(f *gofakeit.Faker, providers, patients int) (Dataset, error) {
	ds := Dataset{
		Providers: make([]appointment.Provider, 0, providers),
		Patients:  make([]appointment.Patient, 0, patients),
		Templates: make([]*template.WeeklyTemplate, 0, providers),
	}
	now := time.Now().UTC()

	for range providers {
		spec := f.RandomString(specialties)
		p := appointment.Provider{
			ID:                   uuid.New(),
			Name:                 "Dr. " + f.Name(),
			Specialty:            &spec,
			ConsultationFeeCents: int64(f.Number(20, 120)) * 5000,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		ds.Providers = append(ds.Providers, p)

		t := template.New(p.ID, []int{15, 20, 30}[f.Number(0, 2)])
		shift := shifts[f.Number(0, len(shifts)-1)]
		for day := time.Monday; day <= time.Friday; day++ {
			next, err := t.WithDay(day, true, shift)
			if err != nil {
				return Dataset{}, fmt.Errorf("template for %s: %w", p.Name, err)
			}
			t = next
		}
		if f.Bool() {
			next, err := t.WithDay(time.Saturday, true, shift[:1])
			if err != nil {
				return Dataset{}, fmt.Errorf("template for %s: %w", p.Name, err)
			}
			t = next
		}
		t.UpdatedAt = now
		ds.Templates = append(ds.Templates, t)
	}

	for range patients {
		email := f.Email()
		ds.Patients = append(ds.Patients, appointment.Patient{
			ID:        uuid.New(),
			Name:      f.Name(),
			Email:     &email,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return ds, nil
}

func LoadMemory(ctx context.Context, ds Dataset, repo *appointment.MemoryRepository, templates template.Repository) error {
	for _, p := range ds.Providers {
		repo.AddProvider(p)
	}
	for _, p := range ds.Patients {
		repo.AddPatient(p)
	}
	for _, t := range ds.Templates {
		if err := templates.SaveTemplate(ctx, t); err != nil {
			return fmt.Errorf("save template: %w", err)
		}
	}
	return nil
}

const batchSize = 1000

// LoadPostgres inserts the dataset in batches, one transaction per batch.
func LoadPostgres(ctx context.Context, pool *pgxpool.Pool, ds Dataset, progress func(table string, done, total int)) error {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	err := inBatches(ctx, pool, len(ds.Providers), func(tx pgx.Tx, i int) error {
		p := ds.Providers[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, consultation_fee_cents, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, p.ID, p.Name, p.Specialty, p.ConsultationFeeCents)
		return err
	}, func(done int) { progress("providers", done, len(ds.Providers)) })
	if err != nil {
		return fmt.Errorf("seed providers: %w", err)
	}

	templates := template.NewPgRepository(pool)
	for _, t := range ds.Templates {
		if err := templates.SaveTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed templates: %w", err)
		}
	}
	progress("weekly_templates", len(ds.Templates), len(ds.Templates))

	err = inBatches(ctx, pool, len(ds.Patients), func(tx pgx.Tx, i int) error {
		p := ds.Patients[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, p.ID, p.Name, p.Email)
		return err
	}, func(done int) { progress("patients", done, len(ds.Patients)) })
	if err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	return nil
}

func inBatches(ctx context.Context, pool *pgxpool.Pool, count int, insert func(tx pgx.Tx, i int) error, done func(int)) error {
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		for i := offset; i < end; i++ {
			if err := insert(tx, i); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		done(end)
	}
	return nil
}
