package db

// Schema defines the SQLite database schema for image builds.
// It creates the builds table with indexes for efficient querying.
const Schema = `
CREATE TABLE IF NOT EXISTS builds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    output_path TEXT NOT NULL UNIQUE,
    format TEXT NOT NULL,
    size_spec TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    mirror TEXT NOT NULL,
    archive_path TEXT,
    archive_sha256 TEXT,
    status TEXT NOT NULL CHECK(status IN ('pending', 'fetching', 'allocating', 'partitioning', 'formatting', 'populating', 'converting', 'ready', 'failed', 'cancelled')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_builds_output_path ON builds(output_path);
CREATE INDEX IF NOT EXISTS idx_builds_status ON builds(status);
CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);
`

// Status constants
const (
	StatusPending      = "pending"
	StatusFetching     = "fetching"
	StatusAllocating   = "allocating"
	StatusPartitioning = "partitioning"
	StatusFormatting   = "formatting"
	StatusPopulating   = "populating"
	StatusConverting   = "converting"
	StatusReady        = "ready"
	StatusFailed       = "failed"
	StatusCancelled    = "cancelled"
)

// Build represents one image build record
type Build struct {
	ID            int64
	OutputPath    string
	Format        string
	SizeSpec      string
	SizeBytes     int64
	Mirror        string
	ArchivePath   string
	ArchiveSHA256 string
	Status        string
	ErrorMessage  string
	CreatedAt     string
	UpdatedAt     string
}
