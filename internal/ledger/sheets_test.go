package ledger

import (
	"context"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/zombor/parcel-desk/internal/parcel"
)

var _ = Describe("SheetsClient", func() {
	var (
		server *ghttp.Server
		client *SheetsClient
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		client, err = NewSheetsClient(context.Background(),
			SheetsConfig{SpreadsheetID: "sheet-123", Worksheet: "Parcels"},
			option.WithEndpoint(server.URL()+"/"),
			option.WithoutAuthentication(),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("AppendRow", func() {
		var (
			body    sheets.ValueRange
			updated string
			err     error
		)

		JustBeforeEach(func() {
			updated, err = client.AppendRow(context.Background(), []any{"FedEx", "J. Smith", "4B", "other", "01/15/2024 14:05:09"})
		})

		When("the API accepts the row", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", MatchRegexp(`^/v4/spreadsheets/sheet-123/values/'Parcels'!A1:append$`)),
					func(w http.ResponseWriter, r *http.Request) {
						Expect(r.URL.Query().Get("valueInputOption")).To(Equal("USER_ENTERED"))
						Expect(r.URL.Query().Get("insertDataOption")).To(Equal("INSERT_ROWS"))
						Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
					},
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
						"spreadsheetId": "sheet-123",
						"updates": map[string]any{
							"updatedRange": "Parcels!A7:E7",
							"updatedRows":  1,
						},
					}),
				))
			})

			It("should return the updated range", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(updated).To(Equal("Parcels!A7:E7"))
			})

			It("should send one row", func() {
				Expect(body.Values).To(HaveLen(1))
				Expect(body.Values[0]).To(ConsistOf("FedEx", "J. Smith", "4B", "other", "01/15/2024 14:05:09"))
			})
		})

		When("the API is unavailable", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, `{"error": {"code": 503, "message": "backend error"}}`))
			})

			It("classifies as ErrLedgerUnavailable", func() {
				Expect(err).To(HaveOccurred())
				Expect(classify(err)).To(MatchError(parcel.ErrLedgerUnavailable))
			})
		})

		When("the spreadsheet does not exist", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error": {"code": 404, "message": "Requested entity was not found."}}`))
			})

			It("classifies as ErrLedgerRejected", func() {
				Expect(classify(err)).To(MatchError(parcel.ErrLedgerRejected))
			})
		})
	})

	Describe("Header", func() {
		It("should read row 1", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", MatchRegexp(`^/v4/spreadsheets/sheet-123/values/'Parcels'!1:1$`)),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"range":  "Parcels!A1:F1",
					"values": [][]string{{"Supplier", "Name", "Unit", "Type", "Logged", "RELEASED ?"}},
				}),
			))

			header, err := client.Header(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(header).To(Equal([]string{"Supplier", "Name", "Unit", "Type", "Logged", "RELEASED ?"}))
		})

		It("returns nothing for an empty sheet", func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"range": "Parcels!A1:Z1"}))

			header, err := client.Header(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(header).To(BeEmpty())
		})
	})
})

var _ = Describe("NewSheetsClient", func() {
	It("requires a spreadsheet ID", func() {
		_, err := NewSheetsClient(context.Background(), SheetsConfig{CredentialsFile: "creds.json"})
		Expect(err).To(MatchError("spreadsheet ID is required"))
	})

	It("requires credentials", func() {
		_, err := NewSheetsClient(context.Background(), SheetsConfig{SpreadsheetID: "sheet-123"})
		Expect(err).To(MatchError("credentials file is required"))
	})
})
