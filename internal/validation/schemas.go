package validation

// Schema names accepted by Gate.Validate.
const (
	SchemaDatabase         = "database"
	SchemaCreateCollection = "createCollection"
	SchemaDropDatabase     = "dropDatabase"
	SchemaDropCollection   = "dropCollection"
	SchemaInsertDocument   = "insertDocument"
	SchemaFetchDocuments   = "fetchDocuments"
	SchemaUpdateDocument   = "updateDocument"
	SchemaDeleteDocument   = "deleteDocument"
	SchemaSignup           = "signup"
	SchemaTenantFlags      = "tenantFlags"
)

const (
	lowercaseDatabaseName = `{"type": "string", "minLength": 1, "maxLength": 255, "format": "lowercase"}`
	plainDatabaseName     = `{"type": "string", "minLength": 1, "maxLength": 255}`
	collectionTarget      = `{
		"type": ["string", "array"],
		"minLength": 1, "maxLength": 255, "format": "lowercase",
		"minItems": 1,
		"items": {"type": "string", "minLength": 1, "maxLength": 255, "format": "lowercase"}
	}`
	plainCollectionName = `{"type": "string", "minLength": 1, "maxLength": 255}`
	storeURI            = `{"type": "string", "format": "uri"}`
	anyObject           = `{"type": "object"}`
)

var schemaSources = map[string]string{
	SchemaDatabase: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + lowercaseDatabaseName + `,
			"mongodbURI": ` + storeURI + `,
			"collectionName": ` + collectionTarget + `
		},
		"required": ["databaseName", "mongodbURI", "collectionName"]
	}`,
	SchemaCreateCollection: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + lowercaseDatabaseName + `,
			"mongodbURI": ` + storeURI + `,
			"collectionName": ` + collectionTarget + `
		},
		"required": ["databaseName", "mongodbURI", "collectionName"]
	}`,
	SchemaDropDatabase: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + lowercaseDatabaseName + `,
			"mongodbURI": ` + storeURI + `
		},
		"required": ["databaseName", "mongodbURI"]
	}`,
	SchemaDropCollection: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + lowercaseDatabaseName + `,
			"mongodbURI": ` + storeURI + `,
			"collectionName": ` + collectionTarget + `
		},
		"required": ["databaseName", "mongodbURI", "collectionName"]
	}`,
	SchemaInsertDocument: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + plainDatabaseName + `,
			"mongodbURI": ` + storeURI + `,
			"collectionName": ` + plainCollectionName + `,
			"document": ` + anyObject + `
		},
		"required": ["databaseName", "mongodbURI", "collectionName", "document"]
	}`,
	SchemaFetchDocuments: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + plainDatabaseName + `,
			"mongodbURI": ` + storeURI + `,
			"collectionName": ` + plainCollectionName + `,
			"query": ` + anyObject + `,
			"limit": {"type": "integer", "minimum": 1},
			"offset": {"type": "integer", "minimum": 0}
		},
		"required": ["databaseName", "mongodbURI", "collectionName"]
	}`,
	SchemaUpdateDocument: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + plainDatabaseName + `,
			"mongodbURI": ` + storeURI + `,
			"collectionName": ` + plainCollectionName + `,
			"filter": ` + anyObject + `,
			"query": ` + anyObject + `,
			"update": ` + anyObject + `
		},
		"required": ["databaseName", "mongodbURI", "collectionName", "update"],
		"anyOf": [{"required": ["filter"]}, {"required": ["query"]}]
	}`,
	SchemaDeleteDocument: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"databaseName": ` + plainDatabaseName + `,
			"mongodbURI": ` + storeURI + `,
			"collectionName": ` + plainCollectionName + `,
			"filter": ` + anyObject + `,
			"query": ` + anyObject + `
		},
		"required": ["databaseName", "mongodbURI", "collectionName"],
		"anyOf": [{"required": ["filter"]}, {"required": ["query"]}]
	}`,
	SchemaSignup: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"email": {"type": "string", "format": "email"}
		},
		"required": ["email"]
	}`,
	SchemaTenantFlags: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"is_active": {"type": "boolean"},
			"is_paid": {"type": "boolean"}
		},
		"minProperties": 1,
		"additionalProperties": false
	}`,
}
