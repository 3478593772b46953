package testutil

// PharmacySchema returns the DDL for the pharmacy service tables.
// This mirrors the production migrations: activity_log and
// discard_records deliberately carry no foreign key to batches, so
// their rows survive batch deletion.
func PharmacySchema() string {
	return `
		CREATE TABLE IF NOT EXISTS medicines (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(100) NOT NULL DEFAULT '',
			manufacturer VARCHAR(255) NOT NULL DEFAULT '',
			reorder_level INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS batches (
			id UUID PRIMARY KEY,
			batch_number VARCHAR(100) NOT NULL,
			bill_id VARCHAR(100) NOT NULL DEFAULT '',
			miscellaneous_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			overall_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			attachments TEXT[] NOT NULL DEFAULT '{}',
			is_draft BOOLEAN NOT NULL DEFAULT true,
			draft_note TEXT NOT NULL DEFAULT '',
			finalized_at TIMESTAMPTZ,
			created_by VARCHAR(255) NOT NULL DEFAULT '',
			version INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT batches_batch_number_unique UNIQUE (batch_number)
		);

		CREATE TABLE IF NOT EXISTS batch_line_items (
			id UUID PRIMARY KEY,
			batch_id UUID NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
			position INT NOT NULL DEFAULT 0,
			medicine_id BIGINT NOT NULL REFERENCES medicines(id),
			medicine_name VARCHAR(255) NOT NULL,
			quantity INT NOT NULL,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			expiry_date TIMESTAMPTZ,
			date_of_purchase TIMESTAMPTZ,
			reorder_level INT NOT NULL DEFAULT 0,
			total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			CONSTRAINT quantity_non_negative CHECK (quantity >= 0),
			CONSTRAINT price_non_negative CHECK (price >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_line_items_batch ON batch_line_items(batch_id);
		CREATE INDEX IF NOT EXISTS idx_line_items_medicine ON batch_line_items(medicine_id);

		-- No FK to batches: entries outlive their batch
		CREATE TABLE IF NOT EXISTS activity_log (
			id UUID PRIMARY KEY,
			batch_id UUID NOT NULL,
			batch_number VARCHAR(100) NOT NULL,
			action VARCHAR(20) NOT NULL,
			details VARCHAR(500) NOT NULL DEFAULT '',
			owner VARCHAR(255) NOT NULL DEFAULT '',
			changes JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT action_valid CHECK (action IN ('CREATED', 'FINALIZED', 'UPDATED', 'DELETED'))
		);

		CREATE INDEX IF NOT EXISTS idx_activity_batch ON activity_log(batch_id);
		CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at DESC);

		-- No FK to batches: records outlive their batch
		CREATE TABLE IF NOT EXISTS discard_records (
			id UUID PRIMARY KEY,
			medicine_id BIGINT NOT NULL,
			medicine_name VARCHAR(255) NOT NULL,
			batch_id UUID NOT NULL,
			batch_number VARCHAR(100) NOT NULL,
			quantity_discarded INT NOT NULL,
			price_per_unit DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			expiry_date TIMESTAMPTZ,
			discarded_by VARCHAR(255) NOT NULL DEFAULT '',
			reason VARCHAR(255) NOT NULL DEFAULT '',
			discarded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT quantity_discarded_positive CHECK (quantity_discarded > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_discard_medicine ON discard_records(medicine_id);
	`
}

// TruncateAllStatement returns a statement emptying every pharmacy
// table. Tests run it between cases so each starts from a clean database.
func TruncateAllStatement() string {
	return `TRUNCATE medicines, batches, batch_line_items, activity_log, discard_records RESTART IDENTITY CASCADE`
}
