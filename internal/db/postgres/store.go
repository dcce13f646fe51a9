package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/store"
)

// Store реализует store.Store поверх PostgreSQL.
// Оптимистичная блокировка: UPDATE ... WHERE version = $n.
type Store struct {
	db *pgxpool.Pool
}

// NewStore создаёт хранилище на готовом пуле.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Users() store.Users             { return users{s.db} }
func (s *Store) Catches() store.Catches         { return catches{s.db} }
func (s *Store) Purchases() store.Purchases     { return purchases{s.db} }
func (s *Store) KarmaEvents() store.KarmaEvents { return karmaEvents{s.db} }

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// versionMiss отличает "записи нет" от "версия устарела" после UPDATE/DELETE без строк.
func versionMiss(ctx context.Context, db *pgxpool.Pool, table, kind, id string) error {
	var exists bool
	err := db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return mapErr("проверка "+kind, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", kind, id, common.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, id, common.ErrConcurrencyConflict)
}

func deleteVersioned(ctx context.Context, db *pgxpool.Pool, table, kind, id string, version int64) error {
	tag, err := db.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1 AND version = $2", id, version)
	if err != nil {
		return mapErr("удаление "+kind, err)
	}
	if tag.RowsAffected() == 0 {
		return versionMiss(ctx, db, table, kind, id)
	}
	return nil
}

// ---------------- users ----------------

type users struct{ db *pgxpool.Pool }

const userColumns = `id, email, display_name, points_balance, version, created_at, updated_at`

func scanUser(row scanner) (*store.User, error) {
	var u store.User
	var name *string
	if err := row.Scan(&u.ID, &u.Email, &name, &u.PointsBalance, &u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.DisplayName = derefString(name)
	u.CreatedAt = utc(u.CreatedAt)
	u.UpdatedAt = utc(u.UpdatedAt)
	return &u, nil
}

func (r users) Create(ctx context.Context, u *store.User) (*store.User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, points_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, NOW())
		RETURNING `+userColumns,
		newID(u.ID), u.Email, nullString(u.DisplayName), u.PointsBalance, createdAtOrNow(u.CreatedAt))
	out, err := scanUser(row)
	if err != nil {
		return nil, mapErr("создание пользователя", err)
	}
	return out, nil
}

func (r users) Get(ctx context.Context, userID string) (*store.User, error) {
	out, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, mapErr("получение пользователя "+userID, err)
	}
	return out, nil
}

func (r users) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	out, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) ORDER BY created_at LIMIT 1`, email))
	if err != nil {
		return nil, mapErr("поиск пользователя по email", err)
	}
	return out, nil
}

func (r users) Update(ctx context.Context, u *store.User) (*store.User, error) {
	out, err := scanUser(r.db.QueryRow(ctx, `
		UPDATE users
		SET email = $2, display_name = $3, points_balance = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $5
		RETURNING `+userColumns,
		u.ID, u.Email, nullString(u.DisplayName), u.PointsBalance, u.Version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, versionMiss(ctx, r.db, "users", "user", u.ID)
	}
	if err != nil {
		return nil, mapErr("обновление пользователя", err)
	}
	return out, nil
}

func (r users) List(ctx context.Context, opts store.ListOptions) (store.Page[*store.User], error) {
	w := &where{}
	w.window(store.ListOptions{Since: opts.Since, Until: opts.Until})
	clause, limit, offset, err := pageClause(w, opts)
	if err != nil {
		return store.Page[*store.User]{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users`+w.sql()+clause, w.args...)
	if err != nil {
		return store.Page[*store.User]{}, mapErr("список пользователей", err)
	}
	page, err := collectPage(rows, limit, offset, scanUser)
	return page, mapErr("список пользователей", err)
}

// ---------------- catches ----------------

type catches struct{ db *pgxpool.Pool }

const catchColumns = `id, user_id, created_at, species, lat, lng, video_key, thumbnail_key,
	base_points, karma_points, verification_status, alive_score, analysis_confidence,
	analysis_note, fish_fingerprint, fish_embedding, version, updated_at`

func scanCatch(row scanner) (*store.Catch, error) {
	var c store.Catch
	var species, video, thumb, note, fingerprint *string
	var status string
	err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt, &species, &c.Lat, &c.Lng, &video, &thumb,
		&c.BasePoints, &c.KarmaPoints, &status, &c.AliveScore, &c.AnalysisConfidence,
		&note, &fingerprint, &c.FishEmbedding, &c.Version, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Species = derefString(species)
	c.VideoKey = derefString(video)
	c.ThumbnailKey = derefString(thumb)
	c.AnalysisNote = derefString(note)
	c.FishFingerprint = derefString(fingerprint)
	c.VerificationStatus = store.VerificationStatus(status)
	c.CreatedAt = utc(c.CreatedAt)
	c.UpdatedAt = utc(c.UpdatedAt)
	return &c, nil
}

func cellOf(c *store.Catch) any {
	lat, lng, ok := c.Location()
	if !ok {
		return nil
	}
	return geo.CellID(lat, lng)
}

func (r catches) Create(ctx context.Context, c *store.Catch) (*store.Catch, error) {
	status := c.VerificationStatus
	if status == "" {
		status = store.StatusPending
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO catches (id, user_id, created_at, species, lat, lng, s2_cell, video_key, thumbnail_key,
			base_points, karma_points, verification_status, alive_score, analysis_confidence,
			analysis_note, fish_fingerprint, fish_embedding, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, NOW())
		RETURNING `+catchColumns,
		newID(c.ID), c.UserID, createdAtOrNow(c.CreatedAt), nullString(c.Species), c.Lat, c.Lng, cellOf(c),
		nullString(c.VideoKey), nullString(c.ThumbnailKey), c.BasePoints, c.KarmaPoints, string(status),
		c.AliveScore, c.AnalysisConfidence, nullString(c.AnalysisNote), nullString(c.FishFingerprint), c.FishEmbedding)
	out, err := scanCatch(row)
	if err != nil {
		return nil, mapErr("создание улова", err)
	}
	return out, nil
}

func (r catches) Get(ctx context.Context, catchID string) (*store.Catch, error) {
	out, err := scanCatch(r.db.QueryRow(ctx, `SELECT `+catchColumns+` FROM catches WHERE id = $1`, catchID))
	if err != nil {
		return nil, mapErr("получение улова "+catchID, err)
	}
	return out, nil
}

func (r catches) Update(ctx context.Context, c *store.Catch) (*store.Catch, error) {
	out, err := scanCatch(r.db.QueryRow(ctx, `
		UPDATE catches
		SET species = $2, lat = $3, lng = $4, s2_cell = $5, video_key = $6, thumbnail_key = $7,
			base_points = $8, karma_points = $9, verification_status = $10, alive_score = $11,
			analysis_confidence = $12, analysis_note = $13, fish_fingerprint = $14, fish_embedding = $15,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $16
		RETURNING `+catchColumns,
		c.ID, nullString(c.Species), c.Lat, c.Lng, cellOf(c), nullString(c.VideoKey), nullString(c.ThumbnailKey),
		c.BasePoints, c.KarmaPoints, string(c.VerificationStatus), c.AliveScore, c.AnalysisConfidence,
		nullString(c.AnalysisNote), nullString(c.FishFingerprint), c.FishEmbedding, c.Version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, versionMiss(ctx, r.db, "catches", "catch", c.ID)
	}
	if err != nil {
		return nil, mapErr("обновление улова", err)
	}
	return out, nil
}

func (r catches) Delete(ctx context.Context, catchID string, version int64) error {
	return deleteVersioned(ctx, r.db, "catches", "catch", catchID, version)
}

func (r catches) list(ctx context.Context, w *where, opts store.ListOptions) (store.Page[*store.Catch], error) {
	w.window(opts)
	clause, limit, offset, err := pageClause(w, opts)
	if err != nil {
		return store.Page[*store.Catch]{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+catchColumns+` FROM catches`+w.sql()+clause, w.args...)
	if err != nil {
		return store.Page[*store.Catch]{}, mapErr("список уловов", err)
	}
	page, err := collectPage(rows, limit, offset, scanCatch)
	return page, mapErr("список уловов", err)
}

func (r catches) ListByUser(ctx context.Context, userID string, opts store.ListOptions) (store.Page[*store.Catch], error) {
	w := &where{}
	w.add("user_id = " + w.arg(userID))
	return r.list(ctx, w, opts)
}

func (r catches) List(ctx context.Context, opts store.ListOptions) (store.Page[*store.Catch], error) {
	return r.list(ctx, &where{}, opts)
}

// ListInArea отбирает уловы, чья ячейка S2 попадает в покрытие круга.
func (r catches) ListInArea(ctx context.Context, q store.AreaQuery) ([]*store.Catch, error) {
	if !geo.ValidCoordinates(q.CenterLat, q.CenterLng) || q.RadiusMiles <= 0 {
		return nil, fmt.Errorf("area query: %w", common.ErrInvalidInput)
	}
	mins, maxs := geo.CoverCap(q.CenterLat, q.CenterLng, q.RadiusMiles).Bounds()

	w := &where{}
	w.add("s2_cell IS NOT NULL")
	w.add(fmt.Sprintf(
		"EXISTS (SELECT 1 FROM unnest(%s::bigint[], %s::bigint[]) AS r(lo, hi) WHERE s2_cell BETWEEN r.lo AND r.hi)",
		w.arg(mins), w.arg(maxs)))
	if q.ExcludeUserID != "" {
		w.add("user_id <> " + w.arg(q.ExcludeUserID))
	}
	w.window(store.ListOptions{Since: q.Since, Statuses: q.Statuses})

	var sb strings.Builder
	sb.WriteString(`SELECT ` + catchColumns + ` FROM catches`)
	sb.WriteString(w.sql())
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + w.arg(q.Limit))
	}

	rows, err := r.db.Query(ctx, sb.String(), w.args...)
	if err != nil {
		return nil, mapErr("поиск уловов в области", err)
	}
	defer rows.Close()
	var out []*store.Catch
	for rows.Next() {
		c, err := scanCatch(rows)
		if err != nil {
			return nil, mapErr("поиск уловов в области", err)
		}
		out = append(out, c)
	}
	return out, mapErr("поиск уловов в области", rows.Err())
}

// ---------------- purchases ----------------

type purchases struct{ db *pgxpool.Pool }

const purchaseColumns = `id, user_id, created_at, center_lat, center_lng, radius_miles, species_filter,
	base_cost_points, discount_percent, final_cost_points, avg_age_hours, included_catch_ids, version`

func scanPurchase(row scanner) (*store.InfoPurchase, error) {
	var p store.InfoPurchase
	var species *string
	err := row.Scan(&p.ID, &p.UserID, &p.CreatedAt, &p.CenterLat, &p.CenterLng, &p.RadiusMiles, &species,
		&p.BaseCostPoints, &p.DiscountPercent, &p.FinalCostPoints, &p.AvgAgeHours, &p.IncludedCatchIDs, &p.Version)
	if err != nil {
		return nil, err
	}
	p.SpeciesFilter = derefString(species)
	p.CreatedAt = utc(p.CreatedAt)
	return &p, nil
}

func (r purchases) Create(ctx context.Context, p *store.InfoPurchase) (*store.InfoPurchase, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO info_purchases (id, user_id, created_at, center_lat, center_lng, radius_miles, species_filter,
			base_cost_points, discount_percent, final_cost_points, avg_age_hours, included_catch_ids, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		RETURNING `+purchaseColumns,
		newID(p.ID), p.UserID, createdAtOrNow(p.CreatedAt), p.CenterLat, p.CenterLng, p.RadiusMiles,
		nullString(p.SpeciesFilter), p.BaseCostPoints, p.DiscountPercent, p.FinalCostPoints, p.AvgAgeHours,
		p.IncludedCatchIDs)
	out, err := scanPurchase(row)
	if err != nil {
		return nil, mapErr("создание покупки", err)
	}
	return out, nil
}

func (r purchases) Get(ctx context.Context, purchaseID string) (*store.InfoPurchase, error) {
	out, err := scanPurchase(r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM info_purchases WHERE id = $1`, purchaseID))
	if err != nil {
		return nil, mapErr("получение покупки "+purchaseID, err)
	}
	return out, nil
}

func (r purchases) Delete(ctx context.Context, purchaseID string, version int64) error {
	return deleteVersioned(ctx, r.db, "info_purchases", "purchase", purchaseID, version)
}

func (r purchases) list(ctx context.Context, w *where, opts store.ListOptions) (store.Page[*store.InfoPurchase], error) {
	w.window(store.ListOptions{Since: opts.Since, Until: opts.Until})
	clause, limit, offset, err := pageClause(w, opts)
	if err != nil {
		return store.Page[*store.InfoPurchase]{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+purchaseColumns+` FROM info_purchases`+w.sql()+clause, w.args...)
	if err != nil {
		return store.Page[*store.InfoPurchase]{}, mapErr("список покупок", err)
	}
	page, err := collectPage(rows, limit, offset, scanPurchase)
	return page, mapErr("список покупок", err)
}

func (r purchases) ListByUser(ctx context.Context, userID string, opts store.ListOptions) (store.Page[*store.InfoPurchase], error) {
	w := &where{}
	w.add("user_id = " + w.arg(userID))
	return r.list(ctx, w, opts)
}

func (r purchases) List(ctx context.Context, opts store.ListOptions) (store.Page[*store.InfoPurchase], error) {
	return r.list(ctx, &where{}, opts)
}

// ---------------- karma events ----------------

type karmaEvents struct{ db *pgxpool.Pool }

const karmaColumns = `id, helper_user_id, beneficiary_user_id, source_catch_id, beneficiary_catch_id,
	points, distance_miles, created_at, version`

func scanKarmaEvent(row scanner) (*store.KarmaEvent, error) {
	var e store.KarmaEvent
	err := row.Scan(&e.ID, &e.HelperUserID, &e.BeneficiaryUserID, &e.SourceCatchID, &e.BeneficiaryCatchID,
		&e.Points, &e.DistanceMiles, &e.CreatedAt, &e.Version)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = utc(e.CreatedAt)
	return &e, nil
}

func (r karmaEvents) Create(ctx context.Context, e *store.KarmaEvent) (*store.KarmaEvent, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO karma_events (id, helper_user_id, beneficiary_user_id, source_catch_id, beneficiary_catch_id,
			points, distance_miles, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		RETURNING `+karmaColumns,
		newID(e.ID), e.HelperUserID, e.BeneficiaryUserID, e.SourceCatchID, e.BeneficiaryCatchID,
		e.Points, e.DistanceMiles, createdAtOrNow(e.CreatedAt))
	out, err := scanKarmaEvent(row)
	if err != nil {
		return nil, mapErr("создание события кармы", err)
	}
	return out, nil
}

func (r karmaEvents) Delete(ctx context.Context, eventID string, version int64) error {
	return deleteVersioned(ctx, r.db, "karma_events", "karma event", eventID, version)
}

func (r karmaEvents) list(ctx context.Context, w *where, opts store.ListOptions) (store.Page[*store.KarmaEvent], error) {
	w.window(store.ListOptions{Since: opts.Since, Until: opts.Until})
	clause, limit, offset, err := pageClause(w, opts)
	if err != nil {
		return store.Page[*store.KarmaEvent]{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+karmaColumns+` FROM karma_events`+w.sql()+clause, w.args...)
	if err != nil {
		return store.Page[*store.KarmaEvent]{}, mapErr("список событий кармы", err)
	}
	page, err := collectPage(rows, limit, offset, scanKarmaEvent)
	return page, mapErr("список событий кармы", err)
}

func (r karmaEvents) ListByHelper(ctx context.Context, helperUserID string, opts store.ListOptions) (store.Page[*store.KarmaEvent], error) {
	w := &where{}
	w.add("helper_user_id = " + w.arg(helperUserID))
	return r.list(ctx, w, opts)
}

func (r karmaEvents) List(ctx context.Context, opts store.ListOptions) (store.Page[*store.KarmaEvent], error) {
	return r.list(ctx, &where{}, opts)
}
