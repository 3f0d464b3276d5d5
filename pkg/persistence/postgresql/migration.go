package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create plans table
			CREATE TABLE plans (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'running', 'completed', 'failed', 'cancelled')),
				root_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_plans_status ON plans(status);
			CREATE INDEX idx_plans_created_at ON plans(created_at);
			CREATE INDEX idx_plans_deleted_at ON plans(deleted_at);
		`,
		2: `
			-- Create plan_nodes table
			CREATE TABLE plan_nodes (
				plan_id UUID NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				node_type VARCHAR(50) NOT NULL CHECK (node_type IN ('task', 'subplan', 'sequential', 'parallel')),
				parent_id VARCHAR(255),
				children JSONB NOT NULL DEFAULT '[]',
				dependencies JSONB NOT NULL DEFAULT '[]',
				assigned_agent VARCHAR(255),
				tool_name VARCHAR(255),
				inputs JSONB DEFAULT '{}',
				status VARCHAR(50) NOT NULL,
				output JSONB,
				error_message TEXT,
				retry_count INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (plan_id, id)
			);

			CREATE INDEX idx_plan_nodes_plan_id ON plan_nodes(plan_id);
			CREATE INDEX idx_plan_nodes_type ON plan_nodes(node_type);
			CREATE INDEX idx_plan_nodes_status ON plan_nodes(status);
			CREATE INDEX idx_plan_nodes_parent_id ON plan_nodes(parent_id);
		`,
	}
}
