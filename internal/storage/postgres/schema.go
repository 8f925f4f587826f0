package postgres

// migrationPgvector adds the node embedding column. It runs outside the
// numbered migrations because it only applies when the vector extension is
// installed. Safe to run repeatedly.
const migrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'nodes' AND column_name = 'embedding'
    ) THEN
        ALTER TABLE nodes ADD COLUMN embedding vector;
    END IF;
END
$$;
`
