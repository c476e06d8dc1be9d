package store_test

import (
	"context"

	"github.com/kubev2v/transcriber/internal/config"
	st "github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store).ToNot(BeNil())
		Expect(store.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		store.Close()
	})

	Context("transaction", func() {
		It("insert a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Create(ctx, model.NewJob(false, false))
			Expect(job).ToNot(BeNil())
			Expect(err).To(BeNil())

			_, cerr := st.Commit(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from transcription_jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rollback a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Create(ctx, model.NewJob(true, true))
			Expect(job).ToNot(BeNil())
			Expect(err).To(BeNil())

			// count in the same transaction
			active, err := store.Job().CountActive(ctx)
			Expect(err).To(BeNil())
			Expect(active).To(BeNumerically("==", 1))

			_, cerr := st.Rollback(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from transcription_jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("reuses the transaction carried by the context", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			sameCtx, err := store.NewTransactionContext(ctx)
			Expect(err).To(BeNil())
			Expect(st.FromContext(sameCtx)).To(BeIdenticalTo(st.FromContext(ctx)))

			_, cerr := st.Rollback(ctx)
			Expect(cerr).To(BeNil())
		})

		It("pings the database", func() {
			Expect(store.Ping(context.TODO())).To(BeNil())
		})

		AfterEach(func() {
			gormDB.Exec("DELETE from transcription_jobs;")
		})
	})
})
