package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwalsh/galley/internal/domain"
)

// JobGateway is the pg-backed face of the external job subsystem: job
// creation inside a caller's transaction, job type catalog reads, and input
// file lookups. The orchestration core consumes these through the JobCreator,
// JobTypeCatalog, and InputFileStore contracts.
type JobGateway struct {
	pool *pgxpool.Pool
}

// NewJobGateway wires the job subsystem boundary backed by pgxpool.
func NewJobGateway(pool *pgxpool.Pool) *JobGateway {
	return &JobGateway{pool: pool}
}

var (
	_ JobCreator     = (*JobGateway)(nil)
	_ JobTypeCatalog = (*JobGateway)(nil)
	_ InputFileStore = (*JobGateway)(nil)
)

func (g *JobGateway) CreateJob(ctx context.Context, tx pgx.Tx, jobType domain.JobType, event domain.TriggerEvent) (domain.Job, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO job (job_type_id, event_id)
		 VALUES ($1, $2)
		 RETURNING id, job_type_id, event_id, status, created, last_modified`,
		jobType.ID, event.ID)

	var job domain.Job
	if err := row.Scan(&job.ID, &job.JobTypeID, &job.EventID, &job.Status,
		&job.Created, &job.LastModified); err != nil {
		return domain.Job{}, fmt.Errorf("failed to create job: %w", err)
	}
	job.JobType = &jobType
	return job, nil
}

func (g *JobGateway) GetJobType(ctx context.Context, name, version string) (domain.JobType, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT id, name, version, title, interface, created
		 FROM job_type WHERE name = $1 AND version = $2`, name, version)

	jobType, err := scanJobType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JobType{}, &domain.NotFoundError{Resource: "job type", Key: name + " " + version}
		}
		return domain.JobType{}, fmt.Errorf("failed to get job type: %w", err)
	}
	return jobType, nil
}

func (g *JobGateway) ListJobTypes(ctx context.Context) ([]domain.JobType, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, name, version, title, interface, created
		 FROM job_type ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list job types: %w", err)
	}
	defer rows.Close()

	jobTypes := []domain.JobType{}
	for rows.Next() {
		jobType, scanErr := scanJobType(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan job type: %w", scanErr)
		}
		jobTypes = append(jobTypes, jobType)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate job types: %w", rowsErr)
	}
	return jobTypes, nil
}

func (g *JobGateway) GetFilesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.InputFile, error) {
	if len(ids) == 0 {
		return []domain.InputFile{}, nil
	}

	rows, err := g.pool.Query(ctx,
		`SELECT id, file_name, media_type, file_size, created
		 FROM input_file WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get input files: %w", err)
	}
	defer rows.Close()

	files := []domain.InputFile{}
	for rows.Next() {
		var (
			file      domain.InputFile
			mediaType pgtype.Text
		)
		if scanErr := rows.Scan(&file.ID, &file.FileName, &mediaType, &file.FileSize, &file.Created); scanErr != nil {
			return nil, fmt.Errorf("failed to scan input file: %w", scanErr)
		}
		file.MediaType = mediaType.String
		files = append(files, file)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate input files: %w", rowsErr)
	}
	return files, nil
}

func scanJobType(row pgx.Row) (domain.JobType, error) {
	var (
		jobType       domain.JobType
		title         pgtype.Text
		interfaceJSON []byte
	)
	if err := row.Scan(&jobType.ID, &jobType.Name, &jobType.Version, &title,
		&interfaceJSON, &jobType.Created); err != nil {
		return domain.JobType{}, err
	}
	jobType.Title = title.String
	if err := json.Unmarshal(interfaceJSON, &jobType.Interface); err != nil {
		return domain.JobType{}, fmt.Errorf("failed to unmarshal job type interface: %w", err)
	}
	return jobType, nil
}
