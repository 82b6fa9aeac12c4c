// SPDX-License-Identifier: MIT
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type sqlTx struct {
	tx  *sql.Tx
	dia dialect
}

func (t *sqlTx) Now(ctx context.Context) (int64, Status) {
	var n int64
	if err := t.tx.QueryRowContext(ctx, t.dia.nowQuery()).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, StatusOK
}

func (t *sqlTx) SelectNodes(ctx context.Context) ([]NodeRow, Status) {
	q := fmt.Sprintf(
		`SELECT node_id, name, status, lastaccess, address, port, session_id
		   FROM ha_node%s ORDER BY node_id %s`, t.dia.tableHint(), t.dia.forUpdate())

	rows, err := t.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		var r NodeRow
		if err := rows.Scan(&r.NodeID, &r.Name, &r.Status, &r.LastAccess, &r.Address, &r.Port, &r.SessionID); err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, StatusOK
}

func (t *sqlTx) SelectConfig(ctx context.Context) (ConfigRow, Status) {
	q := fmt.Sprintf(`SELECT failover_delay, auditlog_enabled FROM ha_config%s %s`, t.dia.tableHint(), t.dia.forUpdate())
	var r ConfigRow
	var audit int
	if err := t.tx.QueryRowContext(ctx, q).Scan(&r.FailoverDelay, &audit); err != nil {
		return ConfigRow{}, classify(err)
	}
	r.AuditlogEnabled = audit != 0
	return r, StatusOK
}

func (t *sqlTx) InsertNode(ctx context.Context, row NodeRow) Status {
	q := fmt.Sprintf(`INSERT INTO ha_node (node_id, name, status, lastaccess, address, port, session_id)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		t.dia.placeholder(1), t.dia.placeholder(2), t.dia.placeholder(3),
		t.dia.placeholder(4), t.dia.placeholder(5), t.dia.placeholder(6), t.dia.placeholder(7))
	_, err := t.tx.ExecContext(ctx, q, row.NodeID, row.Name, row.Status, row.LastAccess, row.Address, row.Port, row.SessionID)
	return classify(err)
}

func (t *sqlTx) UpdateNode(ctx context.Context, row NodeRow) Status {
	q := fmt.Sprintf(`UPDATE ha_node SET status=%s, lastaccess=%s, address=%s, port=%s, session_id=%s WHERE node_id=%s`,
		t.dia.placeholder(1), t.dia.placeholder(2), t.dia.placeholder(3),
		t.dia.placeholder(4), t.dia.placeholder(5), t.dia.placeholder(6))
	_, err := t.tx.ExecContext(ctx, q, row.Status, row.LastAccess, row.Address, row.Port, row.SessionID, row.NodeID)
	return classify(err)
}

func (t *sqlTx) UpdateNodesStatus(ctx context.Context, nodeIDs []string, status int) Status {
	if len(nodeIDs) == 0 {
		return StatusOK
	}
	ph := make([]string, len(nodeIDs))
	args := make([]any, 0, len(nodeIDs)+1)
	args = append(args, status)
	for i, id := range nodeIDs {
		ph[i] = t.dia.placeholder(i + 2)
		args = append(args, id)
	}
	q := fmt.Sprintf(`UPDATE ha_node SET status=%s WHERE node_id IN (%s)`,
		t.dia.placeholder(1), strings.Join(ph, ","))
	_, err := t.tx.ExecContext(ctx, q, args...)
	return classify(err)
}

func (t *sqlTx) UpdateConfig(ctx context.Context, failoverDelay int) Status {
	q := fmt.Sprintf(`UPDATE ha_config SET failover_delay=%s`, t.dia.placeholder(1))
	_, err := t.tx.ExecContext(ctx, q, failoverDelay)
	return classify(err)
}

func (t *sqlTx) DeleteNode(ctx context.Context, nodeID string) Status {
	q := fmt.Sprintf(`DELETE FROM ha_node WHERE node_id=%s`, t.dia.placeholder(1))
	_, err := t.tx.ExecContext(ctx, q, nodeID)
	return classify(err)
}

func (t *sqlTx) InsertAuditRecord(ctx context.Context, table, rowID, field, oldVal, newVal string) Status {
	q := fmt.Sprintf(`INSERT INTO audit_log (resource, resourceid, field, oldvalue, newvalue)
		VALUES (%s, %s, %s, %s, %s)`,
		t.dia.placeholder(1), t.dia.placeholder(2), t.dia.placeholder(3),
		t.dia.placeholder(4), t.dia.placeholder(5))
	_, err := t.tx.ExecContext(ctx, q, table, rowID, field, oldVal, newVal)
	return classify(err)
}

func (t *sqlTx) Commit(ctx context.Context) Status {
	if err := t.tx.Commit(); err != nil {
		return classify(err)
	}
	return StatusOK
}

func (t *sqlTx) Rollback(ctx context.Context) {
	_ = t.tx.Rollback()
}
