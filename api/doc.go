/*
Package api contains the HTTP surface of the storage coordinator.

It is organized into the following subpackages:

 1. server - HTTP server lifecycle: routing, health checks, draining and metrics
 2. filehandler - Handlers exposing reads, writes and deletes of the coordinator,
    and a matching client

# Endpoints

  - POST /api/files?name=&path=&encoding= - Stream the request body to every provider
  - GET /api/files?url=&encoding= - Read content back from the provider owning the URL scheme
  - DELETE /api/files?url= - Delete content
  - GET /api/providers - List the admitted providers by priority
  - GET /livez, /readyz, /drain, /undrain - Health and load balancer integration

# Status codes

Routing errors map to 400 (malformed URL) or 404 (no provider for the scheme,
content not found). A write that failed on any provider returns 502 with the
list of provider errors, and 503 is returned when no provider is configured.
*/
package api
