package dataset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGIndex keeps collected samples in the dataset_samples table.
type PGIndex struct {
	db      *pgxpool.Pool
	dataset string
}

func NewPGIndex(db *pgxpool.Pool, dataset string) *PGIndex {
	return &PGIndex{db: db, dataset: dataset}
}

func (x *PGIndex) Insert(ctx context.Context, s *Sample) error {
	segments, err := json.Marshal(s.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}

	_, err = x.db.Exec(ctx,
		`INSERT INTO dataset_samples
		   (id, dataset, audio_file, text, duration, sample_rate, speaker_id, language, segments, collected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, x.dataset, s.AudioFile, s.Text, s.Duration, s.SampleRate, s.SpeakerID, s.Language, segments, s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert sample %s: %w", s.ID, err)
	}
	return nil
}

// List returns the dataset's samples in collection order, filtered by
// speaker unless speakerID is empty.
func (x *PGIndex) List(ctx context.Context, speakerID string) ([]Sample, error) {
	rows, err := x.db.Query(ctx,
		`SELECT id, audio_file, text, duration, sample_rate, speaker_id, language, segments, collected_at
		 FROM dataset_samples
		 WHERE dataset = $1 AND ($2 = '' OR speaker_id = $2)
		 ORDER BY collected_at, id`,
		x.dataset, speakerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var (
			s        Sample
			segments []byte
		)
		if err := rows.Scan(&s.ID, &s.AudioFile, &s.Text, &s.Duration, &s.SampleRate,
			&s.SpeakerID, &s.Language, &segments, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if err := json.Unmarshal(segments, &s.Segments); err != nil {
			return nil, fmt.Errorf("decode segments of %s: %w", s.ID, err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return samples, nil
}
