package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE projects (
				tenant VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				allowed_origins JSONB NOT NULL DEFAULT '[]',
				rate_limit INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (tenant, id)
			);

			CREATE TABLE workflows (
				tenant VARCHAR(255) NOT NULL,
				project_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				method VARCHAR(16) NOT NULL,
				path TEXT NOT NULL DEFAULT '/',
				is_deployed BOOLEAN NOT NULL DEFAULT false,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant, project_id, id)
			);

			CREATE INDEX idx_workflows_route ON workflows(tenant, project_id, is_deployed);
		`,
	}
}
