package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/navodchik131/luggo-sub000/db/migrations"
)

// SQLStore implements Store on top of sqlx. Two backends are supported:
// postgres via the pgx stdlib driver and sqlite via modernc.org/sqlite.
// Queries are written with ? placeholders and rebound per dialect.
type SQLStore struct {
	db *sqlx.DB
}

func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	store := &SQLStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// Single writer; WAL keeps readers unblocked.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`); err != nil {
		return err
	}
	files, err := listMigrationFiles(migrations.Files)
	if err != nil {
		return err
	}
	for _, file := range files {
		applied, err := s.isMigrationApplied(ctx, file)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := s.applyMigration(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) isMigrationApplied(ctx context.Context, version string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version=?`), version)
	return n > 0, err
}

func (s *SQLStore) applyMigration(ctx context.Context, file string) error {
	sqlBytes, err := migrations.Files.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`), file, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return tx.Commit()
}

func listMigrationFiles(migFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migFS, ".")
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

type taskRow struct {
	ID                string    `db:"id"`
	OwnerID           string    `db:"owner_id"`
	Title             string    `db:"title"`
	Description       string    `db:"description"`
	FromAddress       string    `db:"from_address"`
	ToAddress         string    `db:"to_address"`
	Date              time.Time `db:"date"`
	Category          string    `db:"category"`
	Status            string    `db:"status"`
	CompletionComment string    `db:"completion_comment"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r taskRow) record() TaskRecord {
	return TaskRecord(r)
}

type bidRow struct {
	ID         string    `db:"id"`
	TaskID     string    `db:"task_id"`
	ExecutorID string    `db:"executor_id"`
	Price      string    `db:"price"`
	Comment    string    `db:"comment"`
	Accepted   bool      `db:"accepted"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r bidRow) record() (BidRecord, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return BidRecord{}, fmt.Errorf("bid %s has malformed price %q: %w", r.ID, r.Price, err)
	}
	return BidRecord{
		ID:         r.ID,
		TaskID:     r.TaskID,
		ExecutorID: r.ExecutorID,
		Price:      price,
		Comment:    r.Comment,
		Accepted:   r.Accepted,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

type messageRow struct {
	ID         string    `db:"id"`
	TaskID     string    `db:"task_id"`
	SenderID   string    `db:"sender_id"`
	ReceiverID string    `db:"receiver_id"`
	Text       string    `db:"text"`
	CreatedAt  time.Time `db:"created_at"`
}

type notificationRow struct {
	ID          string    `db:"id"`
	RecipientID string    `db:"recipient_id"`
	Type        string    `db:"type"`
	Title       string    `db:"title"`
	Message     string    `db:"message"`
	ActionURL   string    `db:"action_url"`
	IsRead      bool      `db:"is_read"`
	CreatedAt   time.Time `db:"created_at"`
}

func (s *SQLStore) CreateTask(ctx context.Context, task TaskRecord) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO tasks (id, owner_id, title, description, from_address, to_address, date, category, status, completion_comment, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
		task.ID, task.OwnerID, task.Title, task.Description, task.FromAddress, task.ToAddress,
		task.Date, task.Category, task.Status, task.CompletionComment, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

func (s *SQLStore) GetTask(ctx context.Context, taskID string) (TaskRecord, bool, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM tasks WHERE id=?`), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRecord{}, false, nil
	}
	if err != nil {
		return TaskRecord{}, false, err
	}
	return row.record(), true, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, task TaskRecord) error {
	task.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE tasks SET status=?, completion_comment=?, updated_at=? WHERE id=?`),
		task.Status, task.CompletionComment, task.UpdatedAt, task.ID,
	)
	return err
}

func (s *SQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]TaskRecord, error) {
	query := `SELECT * FROM tasks WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.OwnerID != "" {
		query += ` AND owner_id=?`
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		query += ` AND status=?`
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		query += ` AND category=?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]TaskRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *SQLStore) CreateBid(ctx context.Context, bid BidRecord) error {
	now := time.Now().UTC()
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = now
	}
	bid.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO bids (id, task_id, executor_id, price, comment, accepted, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`),
		bid.ID, bid.TaskID, bid.ExecutorID, bid.Price.String(), bid.Comment, bid.Accepted, bid.CreatedAt, bid.UpdatedAt,
	)
	return err
}

func (s *SQLStore) GetBid(ctx context.Context, bidID string) (BidRecord, bool, error) {
	return s.getBidWhere(ctx, `SELECT * FROM bids WHERE id=?`, bidID)
}

func (s *SQLStore) GetBidByTaskExecutor(ctx context.Context, taskID, executorID string) (BidRecord, bool, error) {
	return s.getBidWhere(ctx, `SELECT * FROM bids WHERE task_id=? AND executor_id=?`, taskID, executorID)
}

func (s *SQLStore) GetAcceptedBid(ctx context.Context, taskID string) (BidRecord, bool, error) {
	return s.getBidWhere(ctx, `SELECT * FROM bids WHERE task_id=? AND accepted`, taskID)
}

func (s *SQLStore) getBidWhere(ctx context.Context, query string, args ...any) (BidRecord, bool, error) {
	var row bidRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return BidRecord{}, false, nil
	}
	if err != nil {
		return BidRecord{}, false, err
	}
	bid, err := row.record()
	if err != nil {
		return BidRecord{}, false, err
	}
	return bid, true, nil
}

func (s *SQLStore) UpdateBid(ctx context.Context, bid BidRecord) error {
	bid.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE bids SET price=?, comment=?, accepted=?, updated_at=? WHERE id=?`),
		bid.Price.String(), bid.Comment, bid.Accepted, bid.UpdatedAt, bid.ID,
	)
	return err
}

func (s *SQLStore) ListBidsByTask(ctx context.Context, taskID string) ([]BidRecord, error) {
	var rows []bidRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT * FROM bids WHERE task_id=? ORDER BY created_at`), taskID); err != nil {
		return nil, err
	}
	out := make([]BidRecord, 0, len(rows))
	for _, r := range rows {
		bid, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, bid)
	}
	return out, nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, msg MessageRecord) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO messages (id, task_id, sender_id, receiver_id, text, created_at) VALUES (?,?,?,?,?,?)`),
		msg.ID, msg.TaskID, msg.SenderID, msg.ReceiverID, msg.Text, msg.CreatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO unread_counters (task_id, user_id, peer_id, count) VALUES (?,?,?,1)
		 ON CONFLICT (task_id, user_id, peer_id) DO UPDATE SET count = unread_counters.count + 1`),
		msg.TaskID, msg.ReceiverID, msg.SenderID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListConversation(ctx context.Context, taskID, a, b string, markRead bool) ([]MessageRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	var rows []messageRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(
		`SELECT * FROM messages
		 WHERE task_id=? AND ((sender_id=? AND receiver_id=?) OR (sender_id=? AND receiver_id=?))
		 ORDER BY created_at, id`),
		taskID, a, b, b, a,
	); err != nil {
		return nil, err
	}
	if markRead {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`DELETE FROM unread_counters WHERE task_id=? AND user_id=? AND peer_id=?`),
			taskID, a, b,
		); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := make([]MessageRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, MessageRecord(r))
	}
	return out, nil
}

func (s *SQLStore) CountConversation(ctx context.Context, taskID, a, b string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM messages
		 WHERE task_id=? AND ((sender_id=? AND receiver_id=?) OR (sender_id=? AND receiver_id=?))`),
		taskID, a, b, b, a,
	)
	return n, err
}

func (s *SQLStore) TotalUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COALESCE(SUM(count), 0) FROM unread_counters WHERE user_id=?`), userID)
	return n, err
}

func (s *SQLStore) ListChats(ctx context.Context, userID string) ([]ChatRecord, error) {
	type chatRow struct {
		messageRow
		PeerID string `db:"peer_id"`
	}
	var rows []chatRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, task_id, sender_id, receiver_id, text, created_at, peer_id FROM (
		   SELECT m.*,
		          CASE WHEN m.sender_id=? THEN m.receiver_id ELSE m.sender_id END AS peer_id,
		          ROW_NUMBER() OVER (
		            PARTITION BY m.task_id, CASE WHEN m.sender_id=? THEN m.receiver_id ELSE m.sender_id END
		            ORDER BY m.created_at DESC, m.id DESC
		          ) AS rn
		   FROM messages m
		   WHERE m.sender_id=? OR m.receiver_id=?
		 ) ranked WHERE rn=1 ORDER BY created_at DESC`),
		userID, userID, userID, userID,
	); err != nil {
		return nil, err
	}
	type counterRow struct {
		TaskID string `db:"task_id"`
		PeerID string `db:"peer_id"`
		Count  int    `db:"count"`
	}
	var counters []counterRow
	if err := s.db.SelectContext(ctx, &counters, s.db.Rebind(
		`SELECT task_id, peer_id, count FROM unread_counters WHERE user_id=?`), userID); err != nil {
		return nil, err
	}
	unread := make(map[string]int, len(counters))
	for _, c := range counters {
		unread[c.TaskID+"|"+c.PeerID] = c.Count
	}
	out := make([]ChatRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ChatRecord{
			TaskID:      r.TaskID,
			PeerID:      r.PeerID,
			LastMessage: MessageRecord(r.messageRow),
			Unread:      unread[r.TaskID+"|"+r.PeerID],
		})
	}
	return out, nil
}

func (s *SQLStore) CreateNotification(ctx context.Context, n NotificationRecord) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO notifications (id, recipient_id, type, title, message, action_url, is_read, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`),
		n.ID, n.RecipientID, n.Type, n.Title, n.Message, n.ActionURL, n.IsRead, n.CreatedAt,
	)
	return err
}

func (s *SQLStore) GetNotification(ctx context.Context, id string) (NotificationRecord, bool, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM notifications WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return NotificationRecord{}, false, nil
	}
	if err != nil {
		return NotificationRecord{}, false, err
	}
	return NotificationRecord(row), true, nil
}

func (s *SQLStore) ListNotifications(ctx context.Context, recipientID string) ([]NotificationRecord, error) {
	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT * FROM notifications WHERE recipient_id=? ORDER BY created_at DESC`), recipientID); err != nil {
		return nil, err
	}
	out := make([]NotificationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, NotificationRecord(r))
	}
	return out, nil
}

func (s *SQLStore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE notifications SET is_read=? WHERE id=?`), true, id)
	return err
}

func (s *SQLStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE notifications SET is_read=? WHERE recipient_id=?`), true, recipientID)
	return err
}

func (s *SQLStore) DeleteNotification(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM notifications WHERE id=?`), id)
	return err
}

func (s *SQLStore) UpsertUser(ctx context.Context, user UserRecord) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO users (id, name, role, created_at) VALUES (?,?,?,?)
		 ON CONFLICT (id) DO UPDATE SET name=excluded.name, role=excluded.role`),
		user.ID, user.Name, user.Role, user.CreatedAt,
	)
	return err
}

func (s *SQLStore) GetUser(ctx context.Context, userID string) (UserRecord, bool, error) {
	var row struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Role      string    `db:"role"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM users WHERE id=?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, false, nil
	}
	if err != nil {
		return UserRecord{}, false, err
	}
	return UserRecord(row), true, nil
}

func (s *SQLStore) CreateReview(ctx context.Context, review ReviewRecord) error {
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO reviews (id, task_id, bid_id, author_id, executor_id, rating, comment, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`),
		review.ID, review.TaskID, review.BidID, review.AuthorID, review.ExecutorID, review.Rating, review.Comment, review.CreatedAt,
	)
	return err
}

func (s *SQLStore) ListReviewsByExecutor(ctx context.Context, executorID string) ([]ReviewRecord, error) {
	var rows []struct {
		ID         string    `db:"id"`
		TaskID     string    `db:"task_id"`
		BidID      string    `db:"bid_id"`
		AuthorID   string    `db:"author_id"`
		ExecutorID string    `db:"executor_id"`
		Rating     int       `db:"rating"`
		Comment    string    `db:"comment"`
		CreatedAt  time.Time `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT * FROM reviews WHERE executor_id=? ORDER BY created_at DESC`), executorID); err != nil {
		return nil, err
	}
	out := make([]ReviewRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ReviewRecord(r))
	}
	return out, nil
}
