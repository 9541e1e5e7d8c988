// Package main is the entry point for quotagate.
//
//	@title						quotagate API
//	@version					1.0
//	@description				API key issuance and usage metering gateway.
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@BasePath					/
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				API key issued by /register
package main

import apihttp "github.com/artpar/quotagate/adapters/http"

func main() {
	apihttp.BuildVersion = version
	Execute()
}
