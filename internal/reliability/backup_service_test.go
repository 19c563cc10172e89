package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercier/folio/internal/database"
	"github.com/jmercier/folio/internal/events"
)

type fakeStore struct {
	uploads map[string][]byte
	objects []types.Object
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]types.Object, error) {
	return f.objects, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func setupBackupDatabases(t *testing.T, dir string) map[string]*database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(dir, "portfolio.db"),
		Name: "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE accounts (id TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO accounts (id, name) VALUES ('acct-1', 'Brokerage')`)
	require.NoError(t, err)

	return map[string]*database.DB{"portfolio": db}
}

func TestBackupUploadsArchive(t *testing.T) {
	dir := t.TempDir()
	databases := setupBackupDatabases(t, dir)
	store := newFakeStore()

	manager := events.NewManager(events.NewBus(), zerolog.Nop())
	svc := NewBackupService(databases, dir, store, 30, manager, zerolog.Nop())

	require.NoError(t, svc.Backup(context.Background()))
	require.Len(t, store.uploads, 1)

	var key string
	for k := range store.uploads {
		key = k
	}
	assert.Contains(t, key, "folio-backup-")
	assert.Contains(t, key, ".tar.gz")

	// The archive must contain the database copy and the metadata file.
	names := map[string][]byte{}
	gz, err := gzip.NewReader(bytes.NewReader(store.uploads[key]))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		names[hdr.Name] = data
	}

	require.Contains(t, names, "portfolio.db")
	require.Contains(t, names, "backup-metadata.json")

	var metadata BackupMetadata
	require.NoError(t, json.Unmarshal(names["backup-metadata.json"], &metadata))
	require.Len(t, metadata.Databases, 1)
	assert.Equal(t, "portfolio", metadata.Databases[0].Name)
	assert.Contains(t, metadata.Databases[0].Checksum, "sha256:")
	assert.Positive(t, metadata.Databases[0].SizeBytes)
}

func TestBackupEmitsCompletionEvent(t *testing.T) {
	dir := t.TempDir()
	databases := setupBackupDatabases(t, dir)

	bus := events.NewBus()
	manager := events.NewManager(bus, zerolog.Nop())

	var received *events.Event
	bus.Subscribe(events.BackupCompleted, func(event *events.Event) {
		received = event
	})

	svc := NewBackupService(databases, dir, newFakeStore(), 30, manager, zerolog.Nop())
	require.NoError(t, svc.Backup(context.Background()))

	require.NotNil(t, received)
	assert.Contains(t, received.Data["key"], "folio-backup-")
	assert.Positive(t, received.Data["size_bytes"])
}

func backupObject(ts time.Time, size int64) types.Object {
	key := archivePrefix + ts.Format(archiveTimestamp) + ".tar.gz"
	return types.Object{Key: aws.String(key), Size: aws.Int64(size)}
}

func TestListBackupsNewestFirst(t *testing.T) {
	store := newFakeStore()
	store.objects = []types.Object{
		backupObject(time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), 100),
		backupObject(time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC), 300),
		backupObject(time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC), 200),
		{Key: aws.String("unrelated.txt")},
	}

	svc := NewBackupService(nil, "", store, 30, nil, zerolog.Nop())
	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)

	require.Len(t, backups, 3)
	assert.Equal(t, int64(300), backups[0].SizeBytes)
	assert.Equal(t, int64(100), backups[2].SizeBytes)
}

func TestRotateKeepsMinimumBackups(t *testing.T) {
	old := time.Now().AddDate(0, 0, -400)
	store := newFakeStore()
	store.objects = []types.Object{
		backupObject(old, 1),
		backupObject(old.AddDate(0, 0, 1), 1),
		backupObject(old.AddDate(0, 0, 2), 1),
	}

	svc := NewBackupService(nil, "", store, 30, nil, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, store.deleted)
}

func TestRotateDeletesExpiredBackups(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.objects = []types.Object{
		backupObject(now.AddDate(0, 0, -1), 1),
		backupObject(now.AddDate(0, 0, -2), 1),
		backupObject(now.AddDate(0, 0, -3), 1),
		backupObject(now.AddDate(0, 0, -100), 1), // beyond retention
		backupObject(now.AddDate(0, 0, -10), 1),  // within retention
	}

	svc := NewBackupService(nil, "", store, 30, nil, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))

	require.Len(t, store.deleted, 1)
	assert.Contains(t, store.deleted[0], now.AddDate(0, 0, -100).Format("2006-01-02"))
}

func TestRotateDisabledWhenRetentionZero(t *testing.T) {
	old := time.Now().AddDate(0, 0, -400)
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.objects = append(store.objects, backupObject(old.AddDate(0, 0, i), 1))
	}

	svc := NewBackupService(nil, "", store, 0, nil, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, store.deleted)
}
