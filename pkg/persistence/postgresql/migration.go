package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				definition JSONB,
				steps JSONB NOT NULL DEFAULT '[]',
				is_active BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE workflow_triggers (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				action_key VARCHAR(100) NOT NULL,
				timing VARCHAR(20) NOT NULL CHECK (timing IN ('BEFORE', 'AFTER', 'INSTEAD')),
				priority INT NOT NULL DEFAULT 100,
				condition JSONB,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_triggers_action_key ON workflow_triggers(action_key);
			CREATE INDEX idx_workflow_triggers_workflow_id ON workflow_triggers(workflow_id);

			CREATE TABLE system_actions (
				action_key VARCHAR(100) PRIMARY KEY,
				display_name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(100) NOT NULL,
				context_schema JSONB,
				is_system BOOLEAN NOT NULL DEFAULT false,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE action_logs (
				id VARCHAR(255) PRIMARY KEY,
				action_key VARCHAR(100) NOT NULL,
				entity_type VARCHAR(100) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255),
				context_data JSONB,
				triggered_workflows TEXT[] NOT NULL DEFAULT '{}',
				success BOOLEAN NOT NULL,
				error_message TEXT,
				execution_time_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_logs_action_key ON action_logs(action_key);
			CREATE INDEX idx_action_logs_created_at ON action_logs(created_at);
		`,
		2: `
			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				trigger_id VARCHAR(255),
				entity_type VARCHAR(100) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				entity_data JSONB,
				status VARCHAR(20) NOT NULL CHECK (status IN ('PENDING', 'IN_PROGRESS', 'COMPLETED', 'REJECTED', 'CANCELLED')),
				current_step_id VARCHAR(255),
				plan JSONB,
				decisions JSONB NOT NULL DEFAULT '[]',
				due_at TIMESTAMP WITH TIME ZONE,
				comment TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				version INT NOT NULL
			);

			CREATE INDEX idx_workflow_instances_entity ON workflow_instances(entity_type, entity_id);
			CREATE INDEX idx_workflow_instances_due ON workflow_instances(due_at) WHERE status = 'IN_PROGRESS';

			CREATE TABLE workflow_instance_steps (
				id VARCHAR(255) PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				step_name VARCHAR(255) NOT NULL DEFAULT '',
				step_type VARCHAR(30) NOT NULL,
				sequence INT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'SKIPPED')),
				approver_user_ids TEXT[] NOT NULL DEFAULT '{}',
				require_all_approvers BOOLEAN NOT NULL DEFAULT false,
				approvals JSONB NOT NULL DEFAULT '[]',
				approved_by_id VARCHAR(255),
				approved_at TIMESTAMP WITH TIME ZONE,
				comment TEXT,
				result JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				version INT NOT NULL
			);

			CREATE INDEX idx_workflow_instance_steps_instance ON workflow_instance_steps(instance_id, sequence);
			CREATE INDEX idx_workflow_instance_steps_pending ON workflow_instance_steps USING GIN (approver_user_ids) WHERE status = 'PENDING';
		`,
		3: `
			CREATE TABLE workflow_template_links (
				template_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				sort_order INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (template_id, workflow_id)
			);
		`,
	}
}
