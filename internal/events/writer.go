package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Event types appended by the engine.
const (
	ProfileCreated          = "profile.created"
	ProfileUpdated          = "profile.updated"
	CourseCreated           = "course.created"
	CourseUpdated           = "course.updated"
	CoursePublished         = "course.published"
	CourseUnpublished       = "course.unpublished"
	CourseDeleted           = "course.deleted"
	SectionCreated          = "section.created"
	SectionUpdated          = "section.updated"
	SectionDeleted          = "section.deleted"
	SectionsReordered       = "section.reordered"
	LessonCreated           = "lesson.created"
	LessonUpdated           = "lesson.updated"
	LessonDeleted           = "lesson.deleted"
	LessonsReordered        = "lesson.reordered"
	EnrollmentCreated       = "enrollment.created"
	ProgressRecorded        = "progress.recorded"
	CourseCompleted         = "course.completed"
	CourseCompletionRevoked = "course.completion_revoked"
	CertificateIssued       = "certificate.issued"
	CertificateArtifactSet  = "certificate.artifact_set"
	ReviewSubmitted         = "review.submitted"
	ReviewDeleted           = "review.deleted"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the change
// it describes.
func (w Writer) Append(ctx context.Context, tx sqlx.ExecerContext, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`
	if b, ok := tx.(interface{ Rebind(string) string }); ok {
		query = b.Rebind(query)
	}
	_, err = tx.ExecContext(ctx, query, ts, evtType, entityKind, nullable(entityID), actorOrSystem(actorID), string(data))
	return err
}

func actorOrSystem(actorID string) string {
	if actorID == "" {
		return "system"
	}
	return actorID
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
