package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// EnsureDataDirectory creates the parent directory of a database file and
// verifies it is writable. In-memory paths need no directory.
func EnsureDataDirectory(dbPath string, sugar *zap.SugaredLogger) error {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}

	absPath, err := filepath.Abs(filepath.Dir(dbPath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path for %s: %w", dbPath, err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w\n"+
			"  Remediation: Ensure the parent directory exists and is writable\n"+
			"  For Docker: Check volume mount permissions", absPath, err)
	}

	testFile := filepath.Join(absPath, ".csrfguard_write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return fmt.Errorf("directory %s is not writable: %w\n"+
			"  Remediation: Check file system permissions\n"+
			"  For bare metal: Run 'chmod -R u+w %s'", absPath, err, absPath)
	}
	os.Remove(testFile)

	sugar.Infow("Data directory ready", "path", absPath)
	return nil
}

// ClassifyRedisError turns a Redis connection failure into an operator message.
func ClassifyRedisError(err error, addr string) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to Redis at %s timed out.\n"+
			"  Remediation:\n"+
			"  - Check that Redis is running and reachable\n"+
			"  - Verify network connectivity: nc -zv %s", addr, addr)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" &&
		(errors.Is(opErr.Err, syscall.ECONNREFUSED) || strings.Contains(errStr, "connection refused")) {
		return fmt.Sprintf("Connection refused by Redis at %s.\n"+
			"  This usually means Redis is not running.\n"+
			"  Remediation:\n"+
			"  - Start Redis: docker compose up -d redis\n"+
			"  - Verify store.redis.addr or CSRFGUARD_REDIS_ADDR", addr)
	}

	if strings.Contains(errStr, "no such host") || strings.Contains(errStr, "lookup") {
		return fmt.Sprintf("Cannot resolve hostname in Redis address %s.\n"+
			"  Remediation:\n"+
			"  - Verify the hostname is correct\n"+
			"  - Check DNS configuration", addr)
	}

	if strings.Contains(errStr, "noauth") || strings.Contains(errStr, "wrongpass") || strings.Contains(errStr, "invalid password") {
		return fmt.Sprintf("Authentication failed for Redis at %s.\n"+
			"  Remediation:\n"+
			"  - Verify store.redis.password or CSRFGUARD_REDIS_PASSWORD", addr)
	}

	return fmt.Sprintf("Failed to connect to Redis at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure Redis is running and accessible\n"+
		"  - Check the store.redis settings", addr, err)
}

// ClassifySQLiteError turns a SQLite open failure into an operator message.
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())
	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	switch {
	case strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "access denied"):
		return fmt.Sprintf("Permission denied accessing SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check file permissions: ls -la %s\n"+
			"  - Check directory permissions: ls -la %s", absPath, absPath, parentDir)

	case strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "sqlite_busy"):
		return fmt.Sprintf("SQLite database at %s is locked by another process.\n"+
			"  Remediation:\n"+
			"  - Check for another running instance sharing the file\n"+
			"  - Use the redis backend when several instances share tokens", absPath)

	case strings.Contains(errStr, "disk full") || strings.Contains(errStr, "no space") || strings.Contains(errStr, "sqlite_full"):
		return fmt.Sprintf("Disk full - cannot write to SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check available disk space: df -h %s\n"+
			"  - Lower store.sweep_interval so expired tokens are reclaimed sooner", absPath, parentDir)

	case strings.Contains(errStr, "corrupt") || strings.Contains(errStr, "malformed"):
		return fmt.Sprintf("SQLite database at %s appears to be corrupted.\n"+
			"  Remediation:\n"+
			"  - Token records are short-lived: stop the service, delete %s and restart", absPath, absPath)

	case strings.Contains(errStr, "path traversal") || strings.Contains(errStr, "invalid database path"):
		return fmt.Sprintf("SQLite path %q was rejected.\n"+
			"  Remediation:\n"+
			"  - Use a plain path without '..' segments in store.sqlite.path", dbPath)

	case strings.Contains(errStr, "read-only"):
		return fmt.Sprintf("SQLite database location is on a read-only file system: %s.\n"+
			"  Remediation:\n"+
			"  - Move the database via CSRFGUARD_SQLITE_PATH", absPath)
	}

	return fmt.Sprintf("Failed to initialize SQLite database at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable", absPath, err, parentDir)
}
