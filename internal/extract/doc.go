// Package extract turns request parts into typed values.
//
// An extractor is a plain function of the request. Failures are reported as
// *ExtractionError, which matches web.ErrExtraction and renders as a 400 (or
// 422 for payloads that decode but fail validation) without the handler ever
// running:
//
//	h := extract.With2(extract.PathInt("id"), extract.QueryBool("verbose"),
//		func(req *web.Request, id int, verbose bool) (*web.Response, error) {
//			return web.JSON(http.StatusOK, lookup(id, verbose)), nil
//		})
package extract
