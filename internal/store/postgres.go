// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/statemachine"
)

// Postgres is the sqlx/lib-pq-backed Store implementation. Every multi-row
// operation opens its own transaction; single-row predicated updates run as
// a plain Exec and inspect RowsAffected.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to Postgres per cfg and verifies connectivity.
func Open(cfg config.Store) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// DB exposes the underlying *sql.DB for goose migrations.
func (p *Postgres) DB() *sql.DB { return p.db.DB }

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) InsertWorkflow(ctx context.Context, nw NewWorkflow) error {
	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		w := nw.Workflow
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO workflows (
				workflow_uuid, workflow_id, user_name, pool, backend, priority,
				status, submit_time, queue_timeout, exec_timeout, plugins,
				parent_uuid, app_uuid, app_version
			) VALUES (
				:workflow_uuid, :workflow_id, :user_name, :pool, :backend, :priority,
				:status, :submit_time, :queue_timeout, :exec_timeout, :plugins,
				:parent_uuid, :app_uuid, :app_version
			)`, w)
		if err != nil {
			return fmt.Errorf("insert workflow: %w", err)
		}
		for _, ng := range nw.Groups {
			g := ng.Group
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO groups (
					group_uuid, workflow_id, name, status, spec, remaining_upstream,
					downstream, scheduler_settings, cleaned_up, ignore_nonlead_status, barrier
				) VALUES (
					:group_uuid, :workflow_id, :name, :status, :spec, :remaining_upstream,
					:downstream, :scheduler_settings, :cleaned_up, :ignore_nonlead_status, :barrier
				)`, g); err != nil {
				return fmt.Errorf("insert group %s: %w", g.Name, err)
			}
			for _, t := range ng.Tasks {
				if _, err := tx.NamedExecContext(ctx, `
					INSERT INTO tasks (
						task_uuid, workflow_id, group_name, name, retry_id, status, lead,
						refresh_token_hash, exit_actions
					) VALUES (
						:task_uuid, :workflow_id, :group_name, :name, :retry_id, :status, :lead,
						:refresh_token_hash, :exit_actions
					)`, t); err != nil {
					return fmt.Errorf("insert task %s/%s: %w", g.Name, t.Name, err)
				}
			}
		}
		return nil
	})
}

func (p *Postgres) FlipSubmittingToWaiting(ctx context.Context, workflowID string) (bool, error) {
	var cancelled bool
	err := p.db.GetContext(ctx, &cancelled, `
		SELECT cancelled_by IS NOT NULL FROM workflows WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return false, fmt.Errorf("check cancellation: %w", err)
	}
	if cancelled {
		return false, nil
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE groups SET status = $1 WHERE workflow_id = $2 AND status = $3`,
		statemachine.Waiting, workflowID, statemachine.Submitting)
	if err != nil {
		return false, fmt.Errorf("flip submitting: %w", err)
	}
	return true, nil
}

func (p *Postgres) GroupsReadyToStart(ctx context.Context, workflowID string) ([]string, error) {
	var names []string
	err := p.db.SelectContext(ctx, &names, `
		SELECT name FROM groups
		WHERE workflow_id = $1 AND status = $2 AND remaining_upstream::text = '[]'`,
		workflowID, statemachine.Waiting)
	if err != nil {
		return nil, fmt.Errorf("groups ready to start: %w", err)
	}
	return names, nil
}

func (p *Postgres) MarkGroupProcessing(ctx context.Context, workflowID, group string) error {
	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE groups SET status = $1 WHERE workflow_id = $2 AND name = $3`,
			statemachine.Processing, workflowID, group); err != nil {
			return fmt.Errorf("mark group processing: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = $1 WHERE workflow_id = $2 AND group_name = $3`,
			statemachine.Processing, workflowID, group); err != nil {
			return fmt.Errorf("mark tasks processing: %w", err)
		}
		return nil
	})
}

func (p *Postgres) GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error) {
	var w Workflow
	if err := p.db.GetContext(ctx, &w, `SELECT * FROM workflows WHERE workflow_id = $1`, workflowID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return &w, nil
}

func (p *Postgres) GetGroup(ctx context.Context, workflowID, group string) (*Group, error) {
	var g Group
	err := p.db.GetContext(ctx, &g, `
		SELECT * FROM groups WHERE workflow_id = $1 AND name = $2`, workflowID, group)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

func (p *Postgres) GetGroups(ctx context.Context, workflowID string) ([]Group, error) {
	var groups []Group
	err := p.db.SelectContext(ctx, &groups, `
		SELECT * FROM groups WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	return groups, nil
}

func (p *Postgres) GetTasks(ctx context.Context, workflowID, group string) ([]Task, error) {
	var tasks []Task
	err := p.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks t WHERE t.workflow_id = $1 AND t.group_name = $2
		AND t.retry_id = (SELECT MAX(retry_id) FROM tasks
			WHERE workflow_id = t.workflow_id AND group_name = t.group_name AND name = t.name)`, workflowID, group)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	return tasks, nil
}

func (p *Postgres) GetTask(ctx context.Context, workflowID, group, name string, retryID int) (*Task, error) {
	var t Task
	err := p.db.GetContext(ctx, &t, `
		SELECT * FROM tasks WHERE workflow_id = $1 AND group_name = $2 AND name = $3 AND retry_id = $4`,
		workflowID, group, name, retryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// GetTaskByUUID resolves a task_uuid to its owning (workflow_id, group,
// name) triple, used by BackendSession to route a POD_LOG frame (which
// only carries task_uuid) to its canonical log key.
func (p *Postgres) GetTaskByUUID(ctx context.Context, taskUUID string) (*Task, error) {
	var t Task
	err := p.db.GetContext(ctx, &t, `SELECT * FROM tasks WHERE task_uuid = $1`, taskUUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get task by uuid: %w", err)
	}
	return &t, nil
}

// phaseColumn returns the "phase start time" column that must be NULL
// before a transition into to may fire (§4.3's optimistic-concurrency
// token); statuses before SCHEDULING have no such guard.
func phaseColumn(to statemachine.Status) string {
	switch to {
	case statemachine.Scheduling:
		return "schedule_start_time"
	case statemachine.Initializing:
		return "init_start_time"
	case statemachine.Running:
		return "run_start_time"
	default:
		if to.Finished() {
			return "finish_time"
		}
		return ""
	}
}

func (p *Postgres) ApplyTaskTransition(ctx context.Context, t TaskTransition) (bool, error) {
	col := phaseColumn(t.To)
	setClauses := "status = :to"
	var nowCol string
	if col != "" {
		nowCol = col
		setClauses += fmt.Sprintf(", %s = now()", col)
	}
	if t.ExitCode != nil {
		setClauses += ", exit_code = :exit_code"
	}
	query := fmt.Sprintf(`
		UPDATE tasks SET %s
		WHERE task_db_key = :key AND status IN (:from)`, setClauses)
	if nowCol != "" {
		query += fmt.Sprintf(" AND %s IS NULL", nowCol)
	}
	query, args, err := sqlx.Named(query, map[string]interface{}{
		"to":        t.To,
		"key":       t.TaskDBKey,
		"from":      statusStrings(t.From),
		"exit_code": t.ExitCode,
	})
	if err != nil {
		return false, fmt.Errorf("build transition query: %w", err)
	}
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return false, fmt.Errorf("expand transition args: %w", err)
	}
	query = p.db.Rebind(query)
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("apply task transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func statusStrings(ss []statemachine.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func (p *Postgres) MarkGroupTasksStatus(ctx context.Context, workflowID, group string, status statemachine.Status) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, finish_time = now()
		WHERE workflow_id = $2 AND group_name = $3 AND finish_time IS NULL`,
		status, workflowID, group)
	if err != nil {
		return fmt.Errorf("mark group tasks status: %w", err)
	}
	return nil
}

func (p *Postgres) InsertRetryTask(ctx context.Context, workflowID, group, name string, refreshTokenHash string) (Task, error) {
	var t Task
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		var maxRetry int
		if err := tx.GetContext(ctx, &maxRetry, `
			SELECT COALESCE(MAX(retry_id), -1) FROM tasks
			WHERE workflow_id = $1 AND group_name = $2 AND name = $3`, workflowID, group, name); err != nil {
			return fmt.Errorf("max retry_id: %w", err)
		}
		var leadFlag bool
		if err := tx.GetContext(ctx, &leadFlag, `
			SELECT lead FROM tasks
			WHERE workflow_id = $1 AND group_name = $2 AND name = $3 AND retry_id = $4`,
			workflowID, group, name, maxRetry); err != nil {
			return fmt.Errorf("lead flag: %w", err)
		}
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO tasks (task_uuid, workflow_id, group_name, name, retry_id, status, lead, refresh_token_hash)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
			RETURNING *`,
			workflowID, group, name, maxRetry+1, statemachine.Waiting, leadFlag, refreshTokenHash)
		return row.StructScan(&t)
	})
	return t, err
}

func (p *Postgres) WriteGroupStatus(ctx context.Context, workflowID, group string, status statemachine.Status) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE groups SET status = $1 WHERE workflow_id = $2 AND name = $3 AND status != $1`,
		status, workflowID, group)
	if err != nil {
		return false, fmt.Errorf("write group status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *Postgres) WriteWorkflowStatus(ctx context.Context, workflowID string, status statemachine.WorkflowStatus, startedNow bool) (bool, error) {
	query := `UPDATE workflows SET status = $1`
	args := []interface{}{status, workflowID}
	if startedNow {
		query += `, start_time = COALESCE(start_time, now())`
	}
	if status.Finished() {
		query += `, end_time = COALESCE(end_time, now())`
	}
	query += ` WHERE workflow_id = $2 AND status != $1`
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("write workflow status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *Postgres) SetGroupCleanedUp(ctx context.Context, workflowID, group string) (bool, error) {
	var allCleaned bool
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE groups SET cleaned_up = true
			WHERE workflow_id = $1 AND name = $2 AND cleaned_up = false`, workflowID, group); err != nil {
			return fmt.Errorf("set cleaned up: %w", err)
		}
		return tx.GetContext(ctx, &allCleaned, `
			SELECT bool_and(cleaned_up) FROM groups WHERE workflow_id = $1`, workflowID)
	})
	return allCleaned, err
}

func (p *Postgres) SetCancelledBy(ctx context.Context, workflowID, user string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE workflows SET cancelled_by = $1 WHERE workflow_id = $2 AND cancelled_by IS NULL`,
		user, workflowID)
	if err != nil {
		return fmt.Errorf("set cancelled_by: %w", err)
	}
	return nil
}

func (p *Postgres) SetFailureMessage(ctx context.Context, workflowID, msg string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE workflows SET failure_message = $1 WHERE workflow_id = $2 AND failure_message IS NULL`,
		msg, workflowID)
	if err != nil {
		return fmt.Errorf("set failure message: %w", err)
	}
	return nil
}

func (p *Postgres) SetArchiveURLs(ctx context.Context, workflowID, logsURL, eventsURL string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE workflows SET logs_url = $1, events_url = $2 WHERE workflow_id = $3`,
		logsURL, eventsURL, workflowID)
	if err != nil {
		return fmt.Errorf("set archive urls: %w", err)
	}
	return nil
}

func (p *Postgres) DownstreamOf(ctx context.Context, workflowID, group string) ([]string, error) {
	var downstream json.RawMessage
	err := p.db.GetContext(ctx, &downstream, `
		SELECT downstream FROM groups WHERE workflow_id = $1 AND name = $2`, workflowID, group)
	if err != nil {
		return nil, fmt.Errorf("downstream of: %w", err)
	}
	var names []string
	if err := json.Unmarshal(downstream, &names); err != nil {
		return nil, fmt.Errorf("decode downstream set: %w", err)
	}
	return names, nil
}

func (p *Postgres) DownstreamReadyAfter(ctx context.Context, workflowID, group string) ([]string, error) {
	downstream, err := p.DownstreamOf(ctx, workflowID, group)
	if err != nil {
		return nil, err
	}
	var ready []string
	err = p.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, name := range downstream {
			var remaining []string
			if err := tx.GetContext(ctx, (*pqStringArray)(&remaining), `
				SELECT remaining_upstream FROM groups
				WHERE workflow_id = $1 AND name = $2 FOR UPDATE`, workflowID, name); err != nil {
				return fmt.Errorf("load remaining_upstream for %s: %w", name, err)
			}
			next := removeString(remaining, group)
			encoded, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode remaining_upstream for %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE groups SET remaining_upstream = $1 WHERE workflow_id = $2 AND name = $3`,
				encoded, workflowID, name); err != nil {
				return fmt.Errorf("write remaining_upstream for %s: %w", name, err)
			}
			if len(next) == 0 {
				ready = append(ready, name)
			}
		}
		return nil
	})
	return ready, err
}

// pqStringArray adapts a []string destination to sqlx.Get's JSON-column
// scan path; the remaining_upstream/downstream columns are stored as JSON
// text arrays rather than Postgres native arrays so they round-trip
// through the same json.RawMessage handling as spec/scheduler_settings.
type pqStringArray []string

func (a *pqStringArray) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*a = nil
		return nil
	default:
		return fmt.Errorf("unsupported remaining_upstream scan type %T", src)
	}
	return json.Unmarshal(raw, (*[]string)(a))
}

func removeString(set []string, target string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func (p *Postgres) UpsertBackend(ctx context.Context, b Backend) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO backends (name, k8s_uid, k8s_namespace, version, last_heartbeat, scheduler_settings, node_conditions, router_address)
		VALUES ($1, $2, $3, $4, now(), $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			version = EXCLUDED.version,
			last_heartbeat = now(),
			scheduler_settings = EXCLUDED.scheduler_settings,
			node_conditions = EXCLUDED.node_conditions,
			router_address = EXCLUDED.router_address`,
		b.Name, b.K8sUID, b.Namespace, b.Version, b.SchedulerSettings, b.NodeConditions, b.RouterAddress)
	if err != nil {
		return fmt.Errorf("upsert backend: %w", err)
	}
	return nil
}

// GetBackendByName loads a backend row, used by BackendSession's INIT
// handler to verify a reconnecting agent's k8s_uid still matches.
func (p *Postgres) GetBackendByName(ctx context.Context, name string) (*Backend, error) {
	var b Backend
	err := p.db.GetContext(ctx, &b, `SELECT * FROM backends WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backend: %w", err)
	}
	return &b, nil
}

func (p *Postgres) TouchBackendHeartbeat(ctx context.Context, name string, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE backends SET last_heartbeat = $1 WHERE name = $2`, at, name)
	if err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	return nil
}

func (p *Postgres) GetPool(ctx context.Context, name string) (*Pool, error) {
	var pool Pool
	err := p.db.GetContext(ctx, &pool, `SELECT * FROM pools WHERE name = $1`, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return &pool, nil
}

func (p *Postgres) UpsertResource(ctx context.Context, r Resource) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO resources (name, backend, allocatable, usage, labels, taints, conditions, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name, backend) DO UPDATE SET
			allocatable = EXCLUDED.allocatable,
			usage = EXCLUDED.usage,
			labels = EXCLUDED.labels,
			taints = EXCLUDED.taints,
			conditions = EXCLUDED.conditions,
			available = EXCLUDED.available`,
		r.Name, r.Backend, r.Allocatable, r.Usage, r.Labels, r.Taints, r.Conditions, r.Available)
	if err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteResource(ctx context.Context, name, backend string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM resources WHERE name = $1 AND backend = $2`, name, backend)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

func (p *Postgres) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
