package syncable

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLayerID = uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	testTime    = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
)

func testAnnotation() *Annotation {
	a := NewAnnotation(AnnotationText, "Check the mounting bracket",
		Vector3{X: 1.5, Y: 0.25, Z: -3}, testLayerID, "user-7", testTime)
	a.Title = "Paint chip"
	return a
}

func TestAnnotationToRecord(t *testing.T) {
	a := testAnnotation()

	rec, err := a.ToRecord()
	require.NoError(t, err)

	assert.Equal(t, a.Sync.ID, rec.ID)
	assert.Equal(t, RecordTypeAnnotation, rec.Type)
	assert.Equal(t, "text", rec.Fields["kind"])
	assert.Equal(t, "Check the mounting bracket", rec.Fields["contentText"])
	assert.Equal(t, []float64{1.5, 0.25, -3}, rec.Fields["position"])
	assert.Equal(t, testLayerID.String(), rec.Fields["layerID"])
	assert.Equal(t, "user-7", rec.Fields["ownerID"])
	assert.Equal(t, "Paint chip", rec.Fields["title"])
}

func TestAnnotationToRecordGolden(t *testing.T) {
	a := testAnnotation()

	rec, err := a.ToRecord()
	require.NoError(t, err)

	data, err := json.MarshalIndent(rec.Fields, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "annotation_record", data)
}

func TestAnnotationToRecordOmitsEmptyTitle(t *testing.T) {
	a := testAnnotation()
	a.Title = ""

	rec, err := a.ToRecord()
	require.NoError(t, err)

	_, ok := rec.Fields["title"]
	assert.False(t, ok, "untitled annotations should not carry a title field")
}

func TestAnnotationToRecordNormalizesTitle(t *testing.T) {
	a := testAnnotation()
	a.Title = "Café wall" // decomposed e + combining acute

	rec, err := a.ToRecord()
	require.NoError(t, err)

	assert.Equal(t, "Café wall", rec.Fields["title"])
}

func TestAnnotationToRecordMissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Annotation)
		field  string
	}{
		{"missing kind", func(a *Annotation) { a.Kind = "" }, "kind"},
		{"missing layer", func(a *Annotation) { a.LayerID = uuid.Nil }, "layerID"},
		{"missing owner", func(a *Annotation) { a.OwnerID = "" }, "ownerID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAnnotation()
			tt.mutate(a)

			_, err := a.ToRecord()
			var mfe *MissingFieldError
			require.ErrorAs(t, err, &mfe)
			assert.Equal(t, tt.field, mfe.Field)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestAnnotationApplyRecordRoundTrip(t *testing.T) {
	a := testAnnotation()
	rec, err := a.ToRecord()
	require.NoError(t, err)
	rec.ModificationDate = testTime.Add(time.Minute)

	var got Annotation
	require.NoError(t, got.ApplyRecord(rec))

	assert.Equal(t, a.Sync.ID, got.Sync.ID)
	assert.Equal(t, rec.ModificationDate, got.Sync.UpdatedAt)
	assert.Equal(t, a.Kind, got.Kind)
	assert.Equal(t, a.Title, got.Title)
	assert.Equal(t, a.ContentText, got.ContentText)
	assert.Equal(t, a.Position, got.Position)
	assert.Equal(t, a.LayerID, got.LayerID)
	assert.Equal(t, a.OwnerID, got.OwnerID)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))
}

func TestAnnotationApplyRecordWrongType(t *testing.T) {
	var a Annotation
	err := a.ApplyRecord(Record{ID: uuid.New(), Type: RecordTypeLayer})

	var rte *RecordTypeError
	require.ErrorAs(t, err, &rte)
	assert.Equal(t, RecordTypeAnnotation, rte.Want)
	assert.Equal(t, RecordTypeLayer, rte.Got)
	assert.True(t, IsFatal(err))
}

func TestAnnotationApplyRecordMissingField(t *testing.T) {
	a := testAnnotation()
	rec, err := a.ToRecord()
	require.NoError(t, err)
	delete(rec.Fields, "contentText")

	var got Annotation
	err = got.ApplyRecord(rec)

	var mfe *MissingFieldError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, "contentText", mfe.Field)
}

func TestAnnotationApplyRecordKeepsOptionalFields(t *testing.T) {
	a := testAnnotation()
	rec, err := a.ToRecord()
	require.NoError(t, err)
	// A remote writer that never set a title must not null out ours.
	delete(rec.Fields, "title")

	require.NoError(t, a.ApplyRecord(rec))
	assert.Equal(t, "Paint chip", a.Title)
}

func TestAnnotationApplyRecordDecodedPosition(t *testing.T) {
	// Drivers decode arrays as []any; both shapes must parse.
	a := testAnnotation()
	rec, err := a.ToRecord()
	require.NoError(t, err)
	rec.Fields["position"] = []any{float64(1.5), float64(0.25), float64(-3)}

	var got Annotation
	require.NoError(t, got.ApplyRecord(rec))
	assert.Equal(t, Vector3{X: 1.5, Y: 0.25, Z: -3}, got.Position)
}

func TestNewAnnotationIsPending(t *testing.T) {
	a := testAnnotation()
	assert.True(t, a.Sync.PendingSync)
	assert.False(t, a.Sync.Deleted)
	assert.Nil(t, a.Sync.LastSyncedAt)
	assert.NotEqual(t, uuid.Nil, a.Sync.ID)
}

func TestMetaMarkSynced(t *testing.T) {
	a := testAnnotation()
	at := testTime.Add(time.Hour)

	a.Meta().MarkSynced(at)

	assert.False(t, a.Sync.PendingSync)
	require.NotNil(t, a.Sync.LastSyncedAt)
	assert.True(t, a.Sync.LastSyncedAt.Equal(at))
}
