package db

// SchemaSQL defines the model table. Every statement is idempotent.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS model SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON model TYPE string;
    -- Ingested source urls, in ingestion order
    DEFINE FIELD IF NOT EXISTS sources ON model TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created_at ON model TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON model TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS model_created_at ON model FIELDS created_at;
`
