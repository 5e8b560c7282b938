package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Published workflow versions
			CREATE TABLE workflow_versions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL,
				project_id VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL DEFAULT '',
				definition JSONB NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, version)
			);

			CREATE UNIQUE INDEX idx_workflow_versions_active ON workflow_versions(workflow_id) WHERE is_active;

			-- Executions
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL,
				project_id VARCHAR(255) NOT NULL DEFAULT '',
				session_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL DEFAULT '',
				chat_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'waiting', 'completed', 'failed', 'cancelled')),
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				wait_type VARCHAR(50) NOT NULL DEFAULT '',
				wait_payload JSONB,
				wait_deadline TIMESTAMP WITH TIME ZONE,
				step_count INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				parent_execution_id VARCHAR(255) NOT NULL DEFAULT '',
				restarted_from_node_id VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_executions_workflow_started ON executions(workflow_id, started_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_session ON executions(session_id);
			CREATE INDEX idx_executions_wait_deadline ON executions(wait_deadline) WHERE status = 'waiting';

			-- Append-only step log
			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				step INTEGER NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL DEFAULT '',
				depth INTEGER NOT NULL DEFAULT 0,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				level VARCHAR(20) NOT NULL,
				message TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				duration_ms BIGINT,
				details JSONB
			);

			CREATE INDEX idx_execution_logs_order ON execution_logs(execution_id, step, timestamp);

			-- Scoped variables; global scope uses an empty owner key
			CREATE TABLE variables (
				scope VARCHAR(20) NOT NULL CHECK (scope IN ('session', 'user', 'project', 'global')),
				owner_key VARCHAR(255) NOT NULL DEFAULT '',
				key VARCHAR(255) NOT NULL,
				value JSONB,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (scope, owner_key, key)
			);
		`,
	}
}
