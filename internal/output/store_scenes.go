package output

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sceneColumns = "id, output_id, idx, narration, visual_description, audio_description, image_path, audio_path, sfx_path, video_path, created_at, updated_at"

// ReplaceScenes swaps the full scene list of an output in one
// transaction. Script generation always produces the complete list, so
// partial updates are never needed here.
func (s *Store) ReplaceScenes(ctx context.Context, outputID string, scenes []Scene) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return storageErr("begin replace scenes", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE output_id = ?`, outputID); err != nil {
			return storageErr("clear scenes", err)
		}

		for i, scene := range scenes {
			id := scene.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO scenes (
                    id, output_id, idx, narration, visual_description,
                    audio_description, image_path, audio_path, sfx_path,
                    video_path, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id,
				outputID,
				i,
				scene.Narration,
				nullableString(scene.VisualDescription),
				nullableString(scene.AudioDescription),
				nullableString(scene.ImagePath),
				nullableString(scene.AudioPath),
				nullableString(scene.SFXPath),
				nullableString(scene.VideoPath),
				now,
				now,
			); err != nil {
				return storageErr(fmt.Sprintf("insert scene %d", i), err)
			}
		}

		if err := tx.Commit(); err != nil {
			return storageErr("commit replace scenes", err)
		}
		return nil
	})
}

// Scenes returns all scenes of an output ordered by index.
func (s *Store) Scenes(ctx context.Context, outputID string) ([]Scene, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE output_id = ? ORDER BY idx`,
		outputID,
	)
	if err != nil {
		return nil, storageErr("list scenes", err)
	}
	defer rows.Close()

	var scenes []Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, storageErr("scan scene", err)
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// SceneCount reports how many scenes exist for an output.
func (s *Store) SceneCount(ctx context.Context, outputID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM scenes WHERE output_id = ?`, outputID).Scan(&count)
	if err != nil {
		return 0, storageErr("count scenes", err)
	}
	return count, nil
}

// SceneAssets names the per-scene artifact slots a producer may fill.
type SceneAssets struct {
	ImagePath *string
	AudioPath *string
	SFXPath   *string
	VideoPath *string
}

// SetSceneAssets updates artifact paths on one scene. Nil fields are
// left untouched so producers only write the slots they own.
func (s *Store) SetSceneAssets(ctx context.Context, sceneID string, assets SceneAssets) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if assets.ImagePath != nil {
		sets = append(sets, "image_path = ?")
		args = append(args, nullableString(*assets.ImagePath))
	}
	if assets.AudioPath != nil {
		sets = append(sets, "audio_path = ?")
		args = append(args, nullableString(*assets.AudioPath))
	}
	if assets.SFXPath != nil {
		sets = append(sets, "sfx_path = ?")
		args = append(args, nullableString(*assets.SFXPath))
	}
	if assets.VideoPath != nil {
		sets = append(sets, "video_path = ?")
		args = append(args, nullableString(*assets.VideoPath))
	}
	if len(sets) == 0 {
		return errors.New("no scene assets to update")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), sceneID)

	query := "UPDATE scenes SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return storageErr("set scene assets", err)
	}
	return nil
}

// AllScenesHaveImages reports whether every scene of an output has an
// image artifact. False when the output has no scenes at all.
func (s *Store) AllScenesHaveImages(ctx context.Context, outputID string) (bool, error) {
	return s.allScenesHave(ctx, outputID, "image_path")
}

// AllScenesHaveAudio reports whether every scene has narration audio.
func (s *Store) AllScenesHaveAudio(ctx context.Context, outputID string) (bool, error) {
	return s.allScenesHave(ctx, outputID, "audio_path")
}

// AllScenesHaveVideos reports whether every scene has a motion clip.
func (s *Store) AllScenesHaveVideos(ctx context.Context, outputID string) (bool, error) {
	return s.allScenesHave(ctx, outputID, "video_path")
}

func (s *Store) allScenesHave(ctx context.Context, outputID, column string) (bool, error) {
	var total, filled int
	query := `SELECT COUNT(1), COUNT(` + column + `) FROM scenes WHERE output_id = ?`
	if err := s.db.QueryRowContext(ctx, query, outputID).Scan(&total, &filled); err != nil {
		return false, storageErr("scene readiness", err)
	}
	return total > 0 && filled == total, nil
}

func scanScene(scanner interface{ Scan(dest ...any) error }) (Scene, error) {
	var (
		scene      Scene
		visual     sql.NullString
		audioDesc  sql.NullString
		imagePath  sql.NullString
		audioPath  sql.NullString
		sfxPath    sql.NullString
		videoPath  sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&scene.ID,
		&scene.OutputID,
		&scene.Idx,
		&scene.Narration,
		&visual,
		&audioDesc,
		&imagePath,
		&audioPath,
		&sfxPath,
		&videoPath,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return Scene{}, err
	}
	scene.VisualDescription = visual.String
	scene.AudioDescription = audioDesc.String
	scene.ImagePath = imagePath.String
	scene.AudioPath = audioPath.String
	scene.SFXPath = sfxPath.String
	scene.VideoPath = videoPath.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		scene.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		scene.UpdatedAt = updated
	}
	return scene, nil
}
