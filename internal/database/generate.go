package database

// sqlc/schema.sql is regenerated from the migrations with:
//
//	go generate ./internal/database

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
