package inventory

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pantrypal/pantry-tracker/internal/vision"
)

func reviewSession(items ...vision.LineItem) *Session {
	sess := NewSession("test-session", "test.jpg", time.Now())
	Expect(sess.BeginAnalysis()).To(Succeed())
	sess.CompleteAnalysis(&vision.Result{
		Kind:    vision.KindReceipt,
		Receipt: &vision.ReceiptData{Items: items},
	})
	return sess
}

var _ = Describe("Session", func() {
	Describe("CompleteAnalysis", func() {
		When("the result is a receipt", func() {
			var sess *Session

			BeforeEach(func() {
				sess = reviewSession(
					vision.LineItem{Name: "Milk", Quantity: 1, Price: 3.49, Category: "dairy", Confidence: vision.ConfidenceHigh},
					vision.LineItem{Name: "Bread", Quantity: 2, Price: 2.00, Category: "bakery", Confidence: vision.ConfidenceMedium},
				)
			})

			It("moves to review", func() {
				Expect(sess.State()).To(Equal(StateReview))
			})

			It("populates one item per receipt line", func() {
				items := sess.Items()
				Expect(items).To(HaveLen(2))
				Expect(items[0].Name).To(Equal("Milk"))
				Expect(items[1].Name).To(Equal("Bread"))
			})

			It("finishes the progress indicator", func() {
				Expect(sess.Snapshot().Progress).To(Equal(100))
			})
		})

		When("the result is a product", func() {
			var sess *Session

			BeforeEach(func() {
				sess = NewSession("test-session", "test.jpg", time.Now())
				Expect(sess.BeginAnalysis()).To(Succeed())
				sess.CompleteAnalysis(&vision.Result{
					Kind: vision.KindProduct,
					Product: &vision.ProductData{
						Name:       "Apples",
						Quantity:   6,
						Category:   "produce",
						Confidence: vision.ConfidenceHigh,
					},
				})
			})

			It("synthesizes exactly one item", func() {
				items := sess.Items()
				Expect(items).To(HaveLen(1))
				Expect(items[0].Name).To(Equal("Apples"))
			})

			It("uses the model-reported count as quantity", func() {
				Expect(sess.Items()[0].Quantity).To(Equal(6))
			})
		})

		When("the receipt has no items", func() {
			var sess *Session

			BeforeEach(func() {
				sess = reviewSession()
			})

			It("reaches review with an empty working set", func() {
				Expect(sess.State()).To(Equal(StateReview))
				Expect(sess.Items()).To(BeEmpty())
			})
		})
	})

	Describe("FailAnalysis", func() {
		var sess *Session

		BeforeEach(func() {
			sess = NewSession("test-session", "test.jpg", time.Now())
			Expect(sess.BeginAnalysis()).To(Succeed())
			sess.FailAnalysis("", "analysis failed")
		})

		It("stays in processing with the error recorded", func() {
			Expect(sess.State()).To(Equal(StateProcessing))
			Expect(sess.Snapshot().Error).To(Equal("analysis failed"))
		})

		It("allows a retry", func() {
			Expect(sess.RetryAllowed()).To(Succeed())
		})

		It("allows a retake", func() {
			Expect(sess.Retake()).To(Succeed())
			Expect(sess.State()).To(Equal(StateRetaken))
		})
	})

	Describe("BeginAnalysis", func() {
		It("rejects a second request while one is in flight", func() {
			sess := NewSession("test-session", "test.jpg", time.Now())
			Expect(sess.BeginAnalysis()).To(Succeed())
			Expect(sess.BeginAnalysis()).To(MatchError(ErrBusy))
			sess.FailAnalysis("", "done")
		})
	})

	Describe("AdjustQuantity", func() {
		var sess *Session

		BeforeEach(func() {
			sess = reviewSession(vision.LineItem{Name: "Milk", Quantity: 1})
		})

		It("increments the quantity", func() {
			Expect(sess.AdjustQuantity(0, 1)).To(Succeed())
			Expect(sess.Items()[0].Quantity).To(Equal(2))
		})

		It("never produces a quantity below 1", func() {
			Expect(sess.AdjustQuantity(0, -1)).To(Succeed())
			Expect(sess.Items()[0].Quantity).To(Equal(1))

			Expect(sess.AdjustQuantity(0, -5)).To(Succeed())
			Expect(sess.Items()[0].Quantity).To(Equal(1))
		})

		It("rejects out-of-range indexes", func() {
			Expect(sess.AdjustQuantity(3, 1)).To(HaveOccurred())
		})
	})

	Describe("EditItem", func() {
		var sess *Session

		BeforeEach(func() {
			sess = reviewSession(vision.LineItem{Name: "Mlik", Price: 3.49, Category: "dairy"})
		})

		It("replaces only the named fields", func() {
			name := "Milk"
			Expect(sess.EditItem(0, ItemEdit{Name: &name})).To(Succeed())

			item := sess.Items()[0]
			Expect(item.Name).To(Equal("Milk"))
			Expect(item.Category).To(Equal("dairy"))
			Expect(item.Price).To(Equal(3.49))
		})

		It("clamps a negative price to zero", func() {
			price := -2.00
			Expect(sess.EditItem(0, ItemEdit{Price: &price})).To(Succeed())
			Expect(sess.Items()[0].Price).To(Equal(0.0))
		})
	})

	Describe("DeleteItem", func() {
		var sess *Session

		BeforeEach(func() {
			sess = reviewSession(
				vision.LineItem{Name: "Milk"},
				vision.LineItem{Name: "Bread"},
			)
		})

		It("removes the item from the working set", func() {
			Expect(sess.DeleteItem(0)).To(Succeed())
			items := sess.Items()
			Expect(items).To(HaveLen(1))
			Expect(items[0].Name).To(Equal("Bread"))
		})

		It("allows deleting down to an empty set", func() {
			Expect(sess.DeleteItem(0)).To(Succeed())
			Expect(sess.DeleteItem(0)).To(Succeed())
			Expect(sess.Items()).To(BeEmpty())
			Expect(sess.State()).To(Equal(StateReview))
		})
	})

	Describe("state guards", func() {
		It("rejects mutations while processing", func() {
			sess := NewSession("test-session", "test.jpg", time.Now())

			var wrongState *ErrWrongState
			err := sess.AdjustQuantity(0, 1)
			Expect(errors.As(err, &wrongState)).To(BeTrue())

			err = sess.DeleteItem(0)
			Expect(errors.As(err, &wrongState)).To(BeTrue())
		})

		It("rejects a retry from review", func() {
			sess := reviewSession(vision.LineItem{Name: "Milk"})
			Expect(sess.RetryAllowed()).To(HaveOccurred())
		})

		It("rejects a retake after commit", func() {
			sess := reviewSession(vision.LineItem{Name: "Milk"})
			Expect(sess.BeginCommit()).To(Succeed())
			sess.FinishCommit(true)
			Expect(sess.Retake()).To(HaveOccurred())
		})
	})

	Describe("BeginCommit", func() {
		It("moves to committed on success", func() {
			sess := reviewSession(vision.LineItem{Name: "Milk"})
			Expect(sess.BeginCommit()).To(Succeed())
			sess.FinishCommit(true)
			Expect(sess.State()).To(Equal(StateCommitted))
		})

		It("stays in review when the write fails", func() {
			sess := reviewSession(vision.LineItem{Name: "Milk"})
			Expect(sess.BeginCommit()).To(Succeed())
			sess.FinishCommit(false)
			Expect(sess.State()).To(Equal(StateReview))
		})

		It("rejects a concurrent commit", func() {
			sess := reviewSession(vision.LineItem{Name: "Milk"})
			Expect(sess.BeginCommit()).To(Succeed())
			Expect(sess.BeginCommit()).To(MatchError(ErrBusy))
			sess.FinishCommit(true)
		})
	})
})
